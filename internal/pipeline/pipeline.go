package pipeline

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/progress"
	"github.com/qi525/civitai-scraper/internal/scraper"
	"github.com/qi525/civitai-scraper/internal/store"
)

// Config controls pipeline sizing and timeouts.
type Config struct {
	// DownloadWorkers sizes the I/O-bound fetch pool.
	DownloadWorkers int
	// PersistWorkers sizes the hash-and-write pool.
	PersistWorkers int
	// QueueDepth bounds both stage queues.
	QueueDepth int
	// FetchTimeout caps each network fetch.
	FetchTimeout time.Duration
	// RunID stamps progress events for this run.
	RunID [16]byte
}

// Pipeline wires discovery output through the download and persist pools into
// the shared result collection. The two history stores are consulted at
// different points: the reference store before any network work, the content
// store before any disk write.
type Pipeline struct {
	cfg     Config
	tasks   *queue[scraper.DownloadTask]
	blobs   *queue[persistTask]
	refs    *store.ReferenceStore
	content *store.ContentStore
	fetcher scraper.Fetcher
	hasher  scraper.Hasher
	clock   scraper.Clock
	results *Results
	emitter progress.Emitter
	logger  *zap.Logger

	downloadWG sync.WaitGroup
	persistWG  sync.WaitGroup
}

// New constructs a Pipeline. The emitter may be nil when progress reporting
// is not wanted (tests, mostly).
func New(
	cfg Config,
	refs *store.ReferenceStore,
	content *store.ContentStore,
	fetcher scraper.Fetcher,
	hasher scraper.Hasher,
	clock scraper.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Pipeline {
	if cfg.DownloadWorkers <= 0 {
		cfg.DownloadWorkers = 5
	}
	if cfg.PersistWorkers <= 0 {
		cfg.PersistWorkers = 5
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		tasks:   newQueue[scraper.DownloadTask](cfg.QueueDepth),
		blobs:   newQueue[persistTask](cfg.QueueDepth),
		refs:    refs,
		content: content,
		fetcher: fetcher,
		hasher:  hasher,
		clock:   clock,
		results: NewResults(),
		emitter: emitter,
		logger:  logger,
	}
}

// Start launches both worker pools. Workers exit once their queue closes and
// drains, or when the context is canceled (hard abort).
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.cfg.DownloadWorkers; i++ {
		p.downloadWG.Add(1)
		go func() {
			defer p.downloadWG.Done()
			p.downloadWorker(ctx)
		}()
	}
	for i := 0; i < p.cfg.PersistWorkers; i++ {
		p.persistWG.Add(1)
		go func() {
			defer p.persistWG.Done()
			p.persistWorker(ctx)
		}()
	}
	p.logger.Info("pipeline started",
		zap.Int("download_workers", p.cfg.DownloadWorkers),
		zap.Int("persist_workers", p.cfg.PersistWorkers),
		zap.Int("queue_depth", p.cfg.QueueDepth),
	)
}

// Enqueue hands a discovered task to the download stage.
func (p *Pipeline) Enqueue(ctx context.Context, task scraper.DownloadTask) error {
	return p.tasks.Enqueue(ctx, task)
}

// Drain closes the intake once discovery has finished producing, then waits
// for both pools stage by stage: downloads first (they are the only producers
// of the persist queue), then persists.
func (p *Pipeline) Drain() {
	p.tasks.Close()
	p.downloadWG.Wait()
	p.blobs.Close()
	p.persistWG.Wait()
	p.logger.Info("pipeline drained", zap.Int("rows", p.results.Len()))
}

// Results exposes the shared result collection.
func (p *Pipeline) Results() *Results {
	return p.results
}

func (p *Pipeline) emitCacheHit(task scraper.DownloadTask) {
	p.emit(progress.Event{
		Stage: progress.StageCacheHit,
		Site:  hostOf(task.Ref.ThumbnailURL),
		URL:   task.Ref.ThumbnailURL,
	})
}

func (p *Pipeline) emitFetchDone(task scraper.DownloadTask, bytes int64, dur time.Duration) {
	p.emit(progress.Event{
		Stage: progress.StageFetchDone,
		Site:  hostOf(task.Ref.ThumbnailURL),
		URL:   task.Ref.ThumbnailURL,
		Bytes: bytes,
		Dur:   dur,
	})
}

func (p *Pipeline) emitFetchFailed(task scraper.DownloadTask, dur time.Duration) {
	p.emit(progress.Event{
		Stage: progress.StageFetchFailed,
		Site:  hostOf(task.Ref.ThumbnailURL),
		URL:   task.Ref.ThumbnailURL,
		Dur:   dur,
	})
}

func (p *Pipeline) emitPersistDone(task scraper.DownloadTask, stored bool) {
	outcome := progress.OutcomeDedup
	if stored {
		outcome = progress.OutcomeStored
	}
	p.emit(progress.Event{
		Stage:   progress.StagePersistDone,
		Site:    hostOf(task.Ref.ThumbnailURL),
		URL:     task.Ref.ThumbnailURL,
		Outcome: outcome,
	})
}

func (p *Pipeline) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	evt.RunID = p.cfg.RunID
	evt.TS = p.clock.Now()
	p.emitter.Emit(evt)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
