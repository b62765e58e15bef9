package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// referenceHeader is the fixed column layout of the persisted reference
// history. The file is deliberately plain CSV so the history can be audited
// or pruned by hand between runs.
var referenceHeader = []string{"Thumbnail URL", "Original Page URL", "Local Image Path", "MD5 (Content)"}

// ReferenceEntry is the cached resolution for one (thumbnail, detail page)
// URL pair.
type ReferenceEntry struct {
	LocalPath   string
	ContentHash string
}

// ReferenceStore maps reference keys (thumbnail URL + "|" + detail URL) to
// their cached local file and digest. It is safe for concurrent use.
type ReferenceStore struct {
	mu      sync.RWMutex
	entries map[string]ReferenceEntry
	path    string
	logger  *zap.Logger
}

// NewReferenceStore creates a store persisted at path. Call Load before use.
func NewReferenceStore(path string, logger *zap.Logger) *ReferenceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceStore{
		entries: make(map[string]ReferenceEntry),
		path:    path,
		logger:  logger,
	}
}

// Load reads the persisted CSV history. Missing and corrupt files both start
// an empty store; individual malformed rows are dropped with a warning so one
// bad hand-edit never poisons the whole history.
func (s *ReferenceStore) Load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("reference history not found, starting empty", zap.String("path", s.path))
			return nil
		}
		return fmt.Errorf("open reference history %s: %w", s.path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		s.logger.Warn("reference history corrupt, starting empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return nil
	}

	entries := make(map[string]ReferenceEntry)
	dropped := 0
	for i, record := range records {
		if i == 0 && isReferenceHeader(record) {
			continue
		}
		key, entry, ok := parseReferenceRow(record)
		if !ok {
			dropped++
			s.logger.Warn("dropping malformed reference history row",
				zap.Int("row", i+1),
				zap.Strings("fields", record),
			)
			continue
		}
		entries[key] = entry
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.logger.Info("reference history loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(entries)),
		zap.Int("dropped", dropped),
	)
	return nil
}

// parseReferenceRow validates one data row. The composite key must split back
// into exactly two non-empty URL components.
func parseReferenceRow(record []string) (string, ReferenceEntry, bool) {
	if len(record) < 4 {
		return "", ReferenceEntry{}, false
	}
	thumb := strings.TrimSpace(record[0])
	detail := strings.TrimSpace(record[1])
	if thumb == "" || detail == "" {
		return "", ReferenceEntry{}, false
	}
	if strings.Contains(thumb, "|") || strings.Contains(detail, "|") {
		return "", ReferenceEntry{}, false
	}
	key := thumb + "|" + detail
	if parts := strings.Split(key, "|"); len(parts) != 2 {
		return "", ReferenceEntry{}, false
	}
	return key, ReferenceEntry{
		LocalPath:   strings.TrimSpace(record[2]),
		ContentHash: strings.TrimSpace(record[3]),
	}, true
}

func isReferenceHeader(record []string) bool {
	if len(record) != len(referenceHeader) {
		return false
	}
	for i, col := range referenceHeader {
		if !strings.EqualFold(strings.TrimSpace(record[i]), col) {
			return false
		}
	}
	return true
}

// Flush writes the history back as CSV, keyed rows sorted so diffs between
// runs stay readable.
func (s *ReferenceStore) Flush() error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		thumb, detail, ok := SplitKey(key)
		if !ok {
			continue
		}
		entry := s.entries[key]
		rows = append(rows, []string{thumb, detail, entry.LocalPath, entry.ContentHash})
	}
	s.mu.RUnlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create reference history dir %s: %w", dir, err)
		}
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create reference history %s: %w", s.path, err)
	}
	writer := csv.NewWriter(f)
	if err := writer.Write(referenceHeader); err != nil {
		f.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write reference history header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		f.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("write reference history rows: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close() //nolint:errcheck,gosec // write error takes precedence
		return fmt.Errorf("flush reference history: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close reference history %s: %w", s.path, err)
	}
	return nil
}

// Lookup returns the cached entry for key, if any.
func (s *ReferenceStore) Lookup(key string) (ReferenceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Insert records key -> entry.
func (s *ReferenceStore) Insert(key string, entry ReferenceEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

// Invalidate removes a stale entry whose local file has gone missing. The
// next run (or the current task) then treats the reference as a fresh miss.
func (s *ReferenceStore) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len reports the number of cached references.
func (s *ReferenceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// SplitKey decomposes a composite reference key into its two URL components.
func SplitKey(key string) (thumb, detail string, ok bool) {
	parts := strings.Split(key, "|")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
