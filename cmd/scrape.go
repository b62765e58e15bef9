package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/app"
	"github.com/qi525/civitai-scraper/internal/config"
	"github.com/qi525/civitai-scraper/internal/logging"
)

// newScrapeCmd creates and configures the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	var (
		maxScrolls  int
		metricsAddr string
		targetsFile string
		cookiesPath string
		showBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "scrape [gallery-url ...]",
		Short: "Runs one scrape over the given gallery pages",
		Long: `Runs a full scrape: every gallery URL given as an argument (or listed in
the targets file) is scrolled to exhaustion, its images downloaded and
deduplicated against the persistent histories, and the run's results
exported as a timestamped workbook.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg.Scrape.Targets = append(cfg.Scrape.Targets, args...)
			if cmd.Flags().Changed("max-scrolls") {
				cfg.Scrape.MaxScrolls = maxScrolls
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Enabled = true
				cfg.Metrics.Addr = metricsAddr
			}
			if cmd.Flags().Changed("targets-file") {
				cfg.Scrape.TargetsFile = targetsFile
			}
			if cmd.Flags().Changed("cookies") {
				cfg.Browser.CookiesPath = cookiesPath
			}
			if showBrowser {
				cfg.Browser.Headless = false
			}
			return runScrape(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&maxScrolls, "max-scrolls", 0, "override the scroll budget per gallery page")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "enable the Prometheus listener on this address")
	cmd.Flags().StringVar(&targetsFile, "targets-file", "", "file with one gallery URL per line")
	cmd.Flags().StringVar(&cookiesPath, "cookies", "", "cookies.json export to inject into the browser")
	cmd.Flags().BoolVar(&showBrowser, "show-browser", false, "run Chrome with a visible window")

	return cmd
}

func runScrape(parent context.Context, cfg config.Config) error {
	logger, logPath, err := logging.NewWithFile(cfg.Logging.Development, cfg.Paths.LogDir, time.Now())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("run log opened", zap.String("path", logPath))

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("scrape run: %w", err)
	}
	return nil
}
