// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/app"
	"github.com/qi525/civitai-scraper/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Paths.ImageDir = filepath.Join(dir, "images")
	cfg.Paths.ResultsDir = filepath.Join(dir, "results")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.ContentHistory = filepath.Join(dir, "downloaded_images.json")
	cfg.Paths.ReferenceHistory = filepath.Join(dir, "image_reference_history.csv")
	return cfg
}

func TestNewLoadsHistories(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Paths.ContentHistory,
		[]byte(`{"0123abcd":"/tmp/0123abcd.jpg"}`), 0o600))

	a, err := app.New(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestNewToleratesMissingHistories(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestRunFailsWithoutTargets(t *testing.T) {
	t.Parallel()

	a, err := app.New(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no scrape targets")
}

func TestRunFailsOnUnreadableTargetsFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Scrape.TargetsFile = filepath.Join(t.TempDir(), "absent.txt")

	a, err := app.New(cfg, zap.NewNop())
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
}
