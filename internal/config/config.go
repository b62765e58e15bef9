// Package config loads and validates scraper configuration via Viper.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Browser  BrowserConfig  `mapstructure:"browser"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// BrowserConfig controls the headless Chrome session.
type BrowserConfig struct {
	Proxy             string `mapstructure:"proxy"`
	UserAgent         string `mapstructure:"user_agent"`
	Headless          bool   `mapstructure:"headless"`
	CookiesPath       string `mapstructure:"cookies_path"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	WindowWidth       int    `mapstructure:"window_width"`
	WindowHeight      int    `mapstructure:"window_height"`
}

// FetchConfig controls the image downloader.
type FetchConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	PerHostQPS     float64 `mapstructure:"per_host_qps"`
	UserAgent      string  `mapstructure:"user_agent"`
	Referer        string  `mapstructure:"referer"`
	Proxy          string  `mapstructure:"proxy"`
}

// PipelineConfig sizes the download and persist worker pools.
type PipelineConfig struct {
	DownloadWorkers int `mapstructure:"download_workers"`
	PersistWorkers  int `mapstructure:"persist_workers"`
	QueueDepth      int `mapstructure:"queue_depth"`
}

// ScrapeConfig governs the discovery loop and card extraction.
type ScrapeConfig struct {
	MaxScrolls        int      `mapstructure:"max_scrolls"`
	ScrollBurst       int      `mapstructure:"scroll_burst"`
	SettleDelayMs     int      `mapstructure:"settle_delay_ms"`
	KeywordSelector   string   `mapstructure:"keyword_selector"`
	ContainerSelector string   `mapstructure:"container_selector"`
	CardSelector      string   `mapstructure:"card_selector"`
	TargetsFile       string   `mapstructure:"targets_file"`
	Targets           []string `mapstructure:"targets"`
}

// PathsConfig sets every on-disk location the run touches.
type PathsConfig struct {
	ImageDir         string `mapstructure:"image_dir"`
	ResultsDir       string `mapstructure:"results_dir"`
	LogDir           string `mapstructure:"log_dir"`
	ContentHistory   string `mapstructure:"content_history"`
	ReferenceHistory string `mapstructure:"reference_history"`
}

// MetricsConfig toggles the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.per_host_qps", 8.0)
	v.SetDefault("fetch.referer", "https://civitai.com/images")
	v.SetDefault("pipeline.download_workers", 5)
	v.SetDefault("pipeline.persist_workers", 5)
	v.SetDefault("pipeline.queue_depth", 256)
	v.SetDefault("scrape.max_scrolls", 30)
	v.SetDefault("scrape.scroll_burst", 10)
	v.SetDefault("scrape.settle_delay_ms", 1500)
	v.SetDefault("scrape.keyword_selector", "header input")
	v.SetDefault("paths.image_dir", "images")
	v.SetDefault("paths.results_dir", "results")
	v.SetDefault("paths.log_dir", "logs")
	v.SetDefault("paths.content_history", "downloaded_images.json")
	v.SetDefault("paths.reference_history", "image_reference_history.csv")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9091")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Pipeline.DownloadWorkers <= 0 || c.Pipeline.PersistWorkers <= 0 {
		return fmt.Errorf("pipeline worker counts must be > 0")
	}
	if c.Pipeline.QueueDepth <= 0 {
		return fmt.Errorf("pipeline.queue_depth must be > 0")
	}
	if c.Scrape.MaxScrolls <= 0 || c.Scrape.ScrollBurst <= 0 {
		return fmt.Errorf("scrape.max_scrolls and scrape.scroll_burst must be > 0")
	}
	if c.Paths.ImageDir == "" || c.Paths.ResultsDir == "" {
		return fmt.Errorf("paths.image_dir and paths.results_dir must be set")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	return nil
}

// NavTimeout converts the browser timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// SettleDelay converts the scroll settle delay into a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Scrape.SettleDelayMs) * time.Millisecond
}

// ResolveTargets merges the inline target list with the optional targets
// file. File lines that are blank or not http(s) URLs are skipped.
func (c Config) ResolveTargets() ([]string, error) {
	targets := append([]string(nil), c.Scrape.Targets...)
	if c.Scrape.TargetsFile == "" {
		return targets, nil
	}

	f, err := os.Open(c.Scrape.TargetsFile)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "http://") && !strings.HasPrefix(line, "https://") {
			continue
		}
		targets = append(targets, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return targets, nil
}
