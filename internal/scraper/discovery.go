package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Discoverer owns the per-run seen set. The gallery re-renders the same cards
// after every scroll, so the whole DOM is re-parsed each pass and this set is
// what guarantees each image slot produces at most one task per run.
type Discoverer struct {
	extractor *Extractor
	seen      map[string]struct{}
}

// NewDiscoverer builds a Discoverer with an empty seen set.
func NewDiscoverer(extractor *Extractor) *Discoverer {
	return &Discoverer{
		extractor: extractor,
		seen:      make(map[string]struct{}),
	}
}

// Discover extracts the cards of one snapshot and returns download tasks for
// the references not yet seen this run. The seen set is updated in place;
// Discover is intended for a single producer goroutine.
func (d *Discoverer) Discover(snapshot, searchURL, keyword, targetDir string, now time.Time) ([]DownloadTask, error) {
	cards, err := d.extractor.Extract(snapshot, keyword, now)
	if err != nil {
		return nil, err
	}

	tasks := make([]DownloadTask, 0, len(cards))
	for _, card := range cards {
		key := card.Ref.Key()
		if _, dup := d.seen[key]; dup {
			continue
		}
		d.seen[key] = struct{}{}
		tasks = append(tasks, DownloadTask{
			Ref:       card.Ref,
			TargetDir: targetDir,
			Row: ResultRow{
				CapturedAt:   now,
				SearchURL:    searchURL,
				ThumbnailURL: card.Ref.ThumbnailURL,
				DetailURL:    card.Ref.DetailURL,
				Reactions:    card.Reactions,
				Keyword:      keyword,
			},
		})
	}
	return tasks, nil
}

// SeenCount reports how many unique references this run has produced.
func (d *Discoverer) SeenCount() int {
	return len(d.seen)
}

// LoopConfig tunes the scroll-and-reparse loop for one gallery page.
type LoopConfig struct {
	// MaxScrolls bounds the number of discovery passes.
	MaxScrolls int
	// ScrollBurst is how many scroll steps fire before each snapshot.
	ScrollBurst int
	// SettleDelay gives the page time to render between bursts.
	SettleDelay time.Duration
	// KeywordSelector locates the search input whose value annotates rows.
	KeywordSelector string
}

// GalleryRun drives discovery for a single gallery page: scroll, snapshot,
// extract, enqueue, repeat. It is the pipeline's sole producer for that page.
type GalleryRun struct {
	session    PageSession
	discoverer *Discoverer
	clock      Clock
	cfg        LoopConfig
	logger     *zap.Logger
}

// NewGalleryRun wires a discovery loop over an open page session.
func NewGalleryRun(session PageSession, discoverer *Discoverer, clock Clock, cfg LoopConfig, logger *zap.Logger) *GalleryRun {
	if cfg.MaxScrolls <= 0 {
		cfg.MaxScrolls = 30
	}
	if cfg.ScrollBurst <= 0 {
		cfg.ScrollBurst = 10
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 50 * time.Millisecond
	}
	if cfg.KeywordSelector == "" {
		cfg.KeywordSelector = "header input"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GalleryRun{
		session:    session,
		discoverer: discoverer,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes discovery passes until the scroll budget is spent or the
// context ends, handing every new task to enqueue. Snapshot failures end the
// run for this page only; a not-yet-rendered gallery just skips the pass.
func (g *GalleryRun) Run(ctx context.Context, searchURL, targetDir string, enqueue func(context.Context, DownloadTask) error) error {
	keyword := g.keyword(ctx)

	for attempt := 1; attempt <= g.cfg.MaxScrolls; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discovery canceled: %w", err)
		}

		for i := 0; i < g.cfg.ScrollBurst; i++ {
			if err := g.session.ScrollStep(ctx); err != nil {
				return fmt.Errorf("scroll step: %w", err)
			}
		}
		if err := sleepCtx(ctx, g.cfg.SettleDelay); err != nil {
			return err
		}

		snapshot, err := g.session.HTML(ctx)
		if err != nil {
			return fmt.Errorf("page snapshot: %w", err)
		}

		tasks, err := g.discoverer.Discover(snapshot, searchURL, keyword, targetDir, g.clock.Now())
		if err != nil {
			if errors.Is(err, ErrNoGallery) {
				g.logger.Warn("gallery container not rendered yet, skipping pass",
					zap.String("search_url", searchURL),
					zap.Int("attempt", attempt),
				)
				continue
			}
			return fmt.Errorf("discovery pass %d: %w", attempt, err)
		}

		for _, task := range tasks {
			if err := enqueue(ctx, task); err != nil {
				return fmt.Errorf("enqueue task: %w", err)
			}
		}
		g.logger.Debug("discovery pass complete",
			zap.String("search_url", searchURL),
			zap.Int("attempt", attempt),
			zap.Int("new_tasks", len(tasks)),
			zap.Int("seen_total", g.discoverer.SeenCount()),
		)
	}
	return nil
}

// keyword reads the search input once per page; extraction is best-effort.
func (g *GalleryRun) keyword(ctx context.Context) string {
	value, ok, err := g.session.InputValue(ctx, g.cfg.KeywordSelector)
	if err != nil {
		g.logger.Warn("could not extract keyword", zap.Error(err))
		return "N/A"
	}
	if !ok || value == "" {
		return "N/A"
	}
	return value
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
