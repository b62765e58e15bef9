// The main package for the civitai-scraper executable.
package main

import (
	"github.com/qi525/civitai-scraper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
