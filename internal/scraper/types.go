// Package scraper defines the core types shared across the scrape pipeline.
package scraper

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// ImageReference identifies one image slot discovered on a gallery page.
// Identity is the (thumbnail URL, detail page URL) pair; everything else is
// display metadata captured at discovery time.
type ImageReference struct {
	ThumbnailURL string
	DetailURL    string
	Keyword      string
	DiscoveredAt time.Time
}

// Key returns the composite identity used by both the per-run seen set and
// the persistent reference store.
func (r ImageReference) Key() string {
	return r.ThumbnailURL + "|" + r.DetailURL
}

// ReactionCounts carries the best-effort reaction annotations scraped from a
// gallery card. A missing or unrecognized button leaves its count at zero.
type ReactionCounts struct {
	Likes  int
	Hearts int
	Laughs int
	Cries  int
	Tips   int
}

// ResultRow is the denormalized record exported for each resolved reference.
type ResultRow struct {
	CapturedAt     time.Time
	SearchURL      string
	ThumbnailURL   string
	LocalPath      string
	LocalHyperlink string
	DetailURL      string
	Reactions      ReactionCounts
	Keyword        string
	ContentHash    string
}

// DownloadTask pairs a discovered reference with its destination directory and
// the result-row template the pipeline stages fill in. Created by discovery,
// consumed exactly once by a download worker.
type DownloadTask struct {
	Ref       ImageReference
	TargetDir string
	Row       ResultRow
}

// Card is one extracted gallery card: the reference plus its annotations.
type Card struct {
	Ref       ImageReference
	Reactions ReactionCounts
}

// Fetcher retrieves raw image bytes from the network.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// PageSession is the browser-automation collaborator the discovery loop
// consumes. Implementations own navigation, cookie state, and rendering.
type PageSession interface {
	// HTML returns a snapshot of the currently loaded DOM.
	HTML(ctx context.Context) (string, error)
	// ScrollStep nudges every scrollable element so more content loads.
	ScrollStep(ctx context.Context) error
	// InputValue reads the current value of the input matching selector;
	// ok is false when the element is absent or empty.
	InputValue(ctx context.Context, selector string) (value string, ok bool, err error)
}

// FileHyperlink converts an absolute local path into a file:// URL with
// forward slashes, suitable for spreadsheet hyperlink cells.
func FileHyperlink(absPath string) string {
	if absPath == "" {
		return ""
	}
	p := filepath.ToSlash(absPath)
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths need the extra slash: file:///C:/...
		return "file:///" + p
	}
	return "file://" + p
}
