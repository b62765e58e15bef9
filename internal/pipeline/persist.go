package pipeline

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/scraper"
)

// defaultExtension is used when the source URL carries no plausible suffix.
const defaultExtension = "jpg"

// persistWorker drains the persist queue until it closes. Per task it hashes
// the bytes, stores at most one copy of the content on disk, updates both
// histories, and publishes the completed row. Write failures drop the task
// and leave both histories untouched.
func (p *Pipeline) persistWorker(ctx context.Context) {
	for {
		item, err := p.blobs.Dequeue(ctx)
		if err != nil {
			if !errors.Is(err, ErrQueueClosed) && ctx.Err() == nil {
				p.logger.Error("persist dequeue failed", zap.Error(err))
			}
			return
		}
		p.processPersist(item)
	}
}

func (p *Pipeline) processPersist(item persistTask) {
	task := item.task
	hash, err := p.hasher.Hash(item.data)
	if err != nil {
		p.logger.Error("hash content failed",
			zap.String("thumbnail_url", task.Ref.ThumbnailURL),
			zap.Error(err),
		)
		return
	}

	localPath, stored, err := p.storeContent(hash, task, item.data)
	if err != nil {
		p.logger.Error("store image failed",
			zap.String("thumbnail_url", task.Ref.ThumbnailURL),
			zap.String("content_hash", hash),
			zap.Error(err),
		)
		return
	}

	// The in-memory map mutations are the only locked section; network and
	// disk I/O already happened outside any lock.
	p.content.Insert(hash, localPath)
	p.refs.Insert(task.Ref.Key(), refEntry(localPath, hash))

	row := task.Row
	row.LocalPath = localPath
	row.LocalHyperlink = scraper.FileHyperlink(localPath)
	row.ContentHash = hash
	p.results.Publish(row)
	p.emitPersistDone(task, stored)

	p.logger.Debug("image persisted",
		zap.String("content_hash", hash),
		zap.String("local_path", localPath),
		zap.Bool("stored", stored),
	)
}

// storeContent resolves where the content lives on disk, writing it only when
// no copy exists yet. It returns the resolved path and whether a write
// happened. Identical bytes reached via different URLs land on the same
// canonical path, so concurrent writers are redundant, never conflicting.
func (p *Pipeline) storeContent(hash string, task scraper.DownloadTask, data []byte) (string, bool, error) {
	if existing, ok := p.content.Lookup(hash); ok && fileExists(existing) {
		return existing, false, nil
	}

	canonical := filepath.Join(task.TargetDir, hash+"."+extensionFromURL(task.Ref.ThumbnailURL))
	if abs, err := filepath.Abs(canonical); err == nil {
		canonical = abs
	}
	if fileExists(canonical) {
		return canonical, false, nil
	}

	if err := os.MkdirAll(filepath.Dir(canonical), 0o750); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(canonical, data, 0o600); err != nil {
		return "", false, err
	}
	return canonical, true, nil
}

// extensionFromURL derives a storage extension from the URL's path suffix,
// ignoring the query string. Implausible suffixes (empty, non-alphabetic, or
// longer than 5 characters) fall back to the generic image extension.
func extensionFromURL(rawURL string) string {
	trimmed := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		trimmed = u.Path
	} else if i := strings.IndexByte(trimmed, '?'); i >= 0 {
		trimmed = trimmed[:i]
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(trimmed), "."))
	if ext == "" || len(ext) > 5 || !isAlpha(ext) {
		return defaultExtension
	}
	return ext
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
