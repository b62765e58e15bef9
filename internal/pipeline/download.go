package pipeline

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/scraper"
	"github.com/qi525/civitai-scraper/internal/store"
)

// persistTask carries fetched bytes from a download worker to the
// hash-and-persist stage.
type persistTask struct {
	task scraper.DownloadTask
	data []byte
}

// downloadWorker drains the task queue until it closes. Per task it runs the
// reference-cache check, then either publishes the cached row (fast path,
// never touches the network) or fetches the bytes and forwards them to the
// persist queue. Fetch failures drop the task; nothing else is affected.
func (p *Pipeline) downloadWorker(ctx context.Context) {
	for {
		task, err := p.tasks.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
				p.logger.Error("task dequeue failed", zap.Error(err))
			}
			return
		}
		p.processDownload(ctx, task)
	}
}

func (p *Pipeline) processDownload(ctx context.Context, task scraper.DownloadTask) {
	if row, ok := p.cachedRow(task); ok {
		p.results.Publish(row)
		p.emitCacheHit(task)
		p.logger.Debug("reference cache hit",
			zap.String("thumbnail_url", task.Ref.ThumbnailURL),
			zap.String("local_path", row.LocalPath),
		)
		return
	}

	fetchCtx := ctx
	if p.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.cfg.FetchTimeout)
		defer cancel()
	}

	start := p.clock.Now()
	data, err := p.fetcher.Fetch(fetchCtx, task.Ref.ThumbnailURL)
	if err != nil {
		// Dropped, not retried: the reference stays absent from both
		// stores and remains eligible on the next run.
		p.emitFetchFailed(task, time.Since(start))
		p.logger.Error("image fetch failed",
			zap.String("thumbnail_url", task.Ref.ThumbnailURL),
			zap.Error(err),
		)
		return
	}
	p.emitFetchDone(task, int64(len(data)), time.Since(start))

	if err := p.blobs.Enqueue(ctx, persistTask{task: task, data: data}); err != nil {
		p.logger.Error("forward to persist stage failed",
			zap.String("thumbnail_url", task.Ref.ThumbnailURL),
			zap.Error(err),
		)
	}
}

// cachedRow resolves the task against the reference store. A hit is valid
// only while its file is still on disk; stale entries are discarded so the
// task proceeds as a fresh miss (self-healing cache).
func (p *Pipeline) cachedRow(task scraper.DownloadTask) (scraper.ResultRow, bool) {
	key := task.Ref.Key()
	entry, ok := p.refs.Lookup(key)
	if !ok {
		return scraper.ResultRow{}, false
	}
	if !fileExists(entry.LocalPath) {
		p.logger.Warn("cached file missing, re-downloading",
			zap.String("reference", key),
			zap.String("stale_path", entry.LocalPath),
		)
		p.refs.Invalidate(key)
		return scraper.ResultRow{}, false
	}
	row := task.Row
	row.LocalPath = entry.LocalPath
	row.LocalHyperlink = scraper.FileHyperlink(entry.LocalPath)
	row.ContentHash = entry.ContentHash
	return row, true
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// refEntry is a convenience constructor used by both stages.
func refEntry(path, hash string) store.ReferenceEntry {
	return store.ReferenceEntry{LocalPath: path, ContentHash: hash}
}
