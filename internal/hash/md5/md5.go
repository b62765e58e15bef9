// Package md5 provides MD5 hashing utilities.
package md5

import (
	"crypto/md5" //nolint:gosec // content addressing, not authentication
	"encoding/hex"
)

// Hasher implements scraper.Hasher using MD5. MD5 is retained because the
// persisted history format records MD5 digests; swapping the digest would
// orphan every existing entry.
type Hasher struct{}

// New returns an MD5 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
