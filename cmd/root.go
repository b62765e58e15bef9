// Package cmd defines and implements the CLI commands for the scraper
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "civitai-scraper",
		Short: "Scrapes gallery pages and archives their images.",
		Long: `civitai-scraper drives a headless browser through gallery search pages,
collects every image reference the infinite scroll reveals, downloads the
images through a deduplicating pipeline, and writes an .xlsx report linking
each reference to its local copy.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus SCRAPER_* env vars)")

	cmd.AddCommand(newScrapeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
