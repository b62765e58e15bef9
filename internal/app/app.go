// Package app initializes and holds long-lived application services, acting
// as a dependency injection container for a scrape run.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/browser"
	"github.com/qi525/civitai-scraper/internal/clock/system"
	"github.com/qi525/civitai-scraper/internal/config"
	"github.com/qi525/civitai-scraper/internal/export"
	collyfetcher "github.com/qi525/civitai-scraper/internal/fetcher/colly"
	md5hash "github.com/qi525/civitai-scraper/internal/hash/md5"
	idgen "github.com/qi525/civitai-scraper/internal/id/uuid"
	"github.com/qi525/civitai-scraper/internal/metrics"
	"github.com/qi525/civitai-scraper/internal/pipeline"
	"github.com/qi525/civitai-scraper/internal/progress"
	"github.com/qi525/civitai-scraper/internal/progress/sinks"
	"github.com/qi525/civitai-scraper/internal/scraper"
	"github.com/qi525/civitai-scraper/internal/store"
)

// App holds all the shared, long-lived services for one scrape run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   scraper.Clock
	refs    *store.ReferenceStore
	content *store.ContentStore
	fetcher *collyfetcher.Fetcher
	hub     *progress.Hub
	metrics *metrics.Server
	runID   [16]byte
}

// New assembles every service the run needs, failing fast when any critical
// piece cannot be initialized.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := system.New()

	refs := store.NewReferenceStore(cfg.Paths.ReferenceHistory, logger)
	content := store.NewContentStore(cfg.Paths.ContentHistory, logger)
	if err := refs.Load(); err != nil {
		return nil, fmt.Errorf("load reference history: %w", err)
	}
	if err := content.Load(); err != nil {
		return nil, fmt.Errorf("load content history: %w", err)
	}

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:  cfg.Fetch.UserAgent,
		Proxy:      cfg.Fetch.Proxy,
		Timeout:    cfg.FetchTimeout(),
		PerHostQPS: cfg.Fetch.PerHostQPS,
		Referer:    cfg.Fetch.Referer,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}

	hubSinks := []progress.Sink{sinks.NewLogSink(logger)}
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		promSink, err := sinks.NewPrometheusSink(registry)
		if err != nil {
			return nil, fmt.Errorf("build prometheus sink: %w", err)
		}
		hubSinks = append(hubSinks, promSink)
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, registry, logger)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, hubSinks...)

	rawID, err := idgen.NewUUIDGenerator().NewRawID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		clock:   clk,
		refs:    refs,
		content: content,
		fetcher: fetcher,
		hub:     hub,
		metrics: metricsServer,
		runID:   progress.UUIDToBytes(rawID),
	}, nil
}

// Run executes the full scrape: discover every target gallery, drain the
// pipeline, flush both histories, and export the result workbook. It always
// attempts history flush and hub shutdown, even after a failed run.
func (a *App) Run(ctx context.Context) (err error) {
	startedAt := a.clock.Now()
	if a.metrics != nil {
		a.metrics.Start()
	}
	a.emit(progress.Event{Stage: progress.StageRunStart, Site: "civitai.com"})

	defer func() {
		stage := progress.StageRunDone
		if err != nil {
			stage = progress.StageRunError
		}
		a.emit(progress.Event{Stage: stage, Site: "civitai.com", Dur: a.clock.Now().Sub(startedAt)})

		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if hubErr := a.hub.Close(closeCtx); hubErr != nil {
			a.logger.Warn("progress hub close", zap.Error(hubErr))
		}
		if a.metrics != nil {
			if stopErr := a.metrics.Stop(closeCtx); stopErr != nil {
				a.logger.Warn("metrics stop", zap.Error(stopErr))
			}
		}
	}()

	targets, err := a.cfg.ResolveTargets()
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no scrape targets configured")
	}

	imageDir, err := filepath.Abs(a.cfg.Paths.ImageDir)
	if err != nil {
		return fmt.Errorf("resolve image dir: %w", err)
	}

	pipe := pipeline.New(pipeline.Config{
		DownloadWorkers: a.cfg.Pipeline.DownloadWorkers,
		PersistWorkers:  a.cfg.Pipeline.PersistWorkers,
		QueueDepth:      a.cfg.Pipeline.QueueDepth,
		FetchTimeout:    a.cfg.FetchTimeout(),
		RunID:           a.runID,
	}, a.refs, a.content, a.fetcher, md5hash.New(), a.clock, a.hub, a.logger)
	pipe.Start(ctx)

	discoverErr := a.discoverTargets(ctx, targets, imageDir, pipe)
	pipe.Drain()

	if flushErr := a.flushHistories(); flushErr != nil {
		return flushErr
	}
	if discoverErr != nil {
		return discoverErr
	}

	exporter := export.New(export.Config{Dir: a.cfg.Paths.ResultsDir}, a.logger)
	path, err := exporter.Export(pipe.Results().Rows(), startedAt)
	if err != nil {
		return fmt.Errorf("export results: %w", err)
	}
	a.logger.Info("scrape run complete",
		zap.Int("rows", pipe.Results().Len()),
		zap.String("workbook", path),
	)
	return nil
}

// discoverTargets walks every gallery URL with a single shared browser
// session. A target that fails to navigate is logged and skipped; discovery
// failures abort the run so partial results still flush.
func (a *App) discoverTargets(ctx context.Context, targets []string, imageDir string, pipe *pipeline.Pipeline) error {
	session, err := browser.New(browser.Config{
		Proxy:             a.cfg.Browser.Proxy,
		UserAgent:         a.cfg.Browser.UserAgent,
		Headless:          a.cfg.Browser.Headless,
		CookiesPath:       a.cfg.Browser.CookiesPath,
		NavigationTimeout: a.cfg.NavTimeout(),
		WindowWidth:       a.cfg.Browser.WindowWidth,
		WindowHeight:      a.cfg.Browser.WindowHeight,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer session.Close()

	discoverer := scraper.NewDiscoverer(scraper.NewExtractor(scraper.ExtractorConfig{
		ContainerSelector: a.cfg.Scrape.ContainerSelector,
		CardSelector:      a.cfg.Scrape.CardSelector,
	}))
	loopCfg := scraper.LoopConfig{
		MaxScrolls:      a.cfg.Scrape.MaxScrolls,
		ScrollBurst:     a.cfg.Scrape.ScrollBurst,
		SettleDelay:     a.cfg.SettleDelay(),
		KeywordSelector: a.cfg.Scrape.KeywordSelector,
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}
		if err := session.Navigate(ctx, target); err != nil {
			a.logger.Error("target navigation failed, skipping",
				zap.String("search_url", target),
				zap.Error(err),
			)
			continue
		}

		before := discoverer.SeenCount()
		run := scraper.NewGalleryRun(session, discoverer, a.clock, loopCfg, a.logger)
		if err := run.Run(ctx, target, imageDir, pipe.Enqueue); err != nil {
			return fmt.Errorf("discover %s: %w", target, err)
		}
		a.emit(progress.Event{
			Stage: progress.StageDiscover,
			Site:  "civitai.com",
			URL:   target,
			Count: int64(discoverer.SeenCount() - before),
		})
	}
	return nil
}

func (a *App) flushHistories() error {
	if err := a.content.Flush(); err != nil {
		return fmt.Errorf("flush content history: %w", err)
	}
	if err := a.refs.Flush(); err != nil {
		return fmt.Errorf("flush reference history: %w", err)
	}
	a.logger.Info("histories flushed",
		zap.Int("content_entries", a.content.Len()),
		zap.Int("reference_entries", a.refs.Len()),
	)
	return nil
}

func (a *App) emit(evt progress.Event) {
	evt.RunID = a.runID
	evt.TS = a.clock.Now()
	a.hub.Emit(evt)
}
