package pipeline

import (
	"sync"

	"github.com/qi525/civitai-scraper/internal/scraper"
)

// Results accumulates the rows produced by download and persist workers.
// Append order across concurrent workers is incidental; the contract is
// exactly one row per resolved reference and none for dropped tasks.
type Results struct {
	mu   sync.Mutex
	rows []scraper.ResultRow
}

// NewResults returns an empty collector.
func NewResults() *Results {
	return &Results{}
}

// Publish appends one completed row.
func (r *Results) Publish(row scraper.ResultRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
}

// Rows returns a copy of the collected rows.
func (r *Results) Rows() []scraper.ResultRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]scraper.ResultRow, len(r.rows))
	copy(out, r.rows)
	return out
}

// Len reports how many rows have been published.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}
