// Package store implements the two persistent dedup histories: the
// content-hash store (digest -> local path) and the reference store
// (URL pair -> local path + digest). Both are loaded once at startup,
// mutated under a lock during the run, and flushed once at shutdown.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// ContentStore maps content digests to the absolute path of the single
// stored copy of that content. It is safe for concurrent use.
type ContentStore struct {
	mu      sync.RWMutex
	entries map[string]string
	path    string
	logger  *zap.Logger
}

// NewContentStore creates a store persisted at path. Call Load before use.
func NewContentStore(path string, logger *zap.Logger) *ContentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContentStore{
		entries: make(map[string]string),
		path:    path,
		logger:  logger,
	}
}

// Load reads the persisted JSON mapping. A missing file starts an empty
// store; a corrupt file is logged and also starts empty rather than
// aborting the run.
func (s *ContentStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("content history not found, starting empty", zap.String("path", s.path))
			return nil
		}
		return fmt.Errorf("read content history %s: %w", s.path, err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("content history corrupt, starting empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return nil
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.logger.Info("content history loaded",
		zap.String("path", s.path),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// Flush writes the mapping back to disk as indented JSON so the file stays
// human-readable between runs.
func (s *ContentStore) Flush() error {
	s.mu.RLock()
	payload, err := json.MarshalIndent(s.entries, "", "    ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal content history: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create content history dir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("write content history %s: %w", s.path, err)
	}
	return nil
}

// Lookup returns the stored path for hash, if any.
func (s *ContentStore) Lookup(hash string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.entries[hash]
	return path, ok
}

// Insert records hash -> path. Last write wins; identical content always
// resolves to the same canonical path anyway.
func (s *ContentStore) Insert(hash, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[hash] = path
}

// Len reports the number of recorded digests.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
