package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReferenceStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.csv")
	s := NewReferenceStore(path, zap.NewNop())
	require.NoError(t, s.Load())

	s.Insert("https://cdn.example.com/a.jpg|https://example.com/images/1", ReferenceEntry{
		LocalPath:   "/images/abc.jpg",
		ContentHash: "abc123",
	})
	s.Insert("https://cdn.example.com/b.jpg|https://example.com/images/2", ReferenceEntry{
		LocalPath:   "/images/def.png",
		ContentHash: "def456",
	})
	require.NoError(t, s.Flush())

	reloaded := NewReferenceStore(path, zap.NewNop())
	require.NoError(t, reloaded.Load())
	require.Equal(t, 2, reloaded.Len())

	entry, ok := reloaded.Lookup("https://cdn.example.com/a.jpg|https://example.com/images/1")
	require.True(t, ok)
	require.Equal(t, "/images/abc.jpg", entry.LocalPath)
	require.Equal(t, "abc123", entry.ContentHash)
}

func TestReferenceStoreDropsMalformedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.csv")
	raw := "Thumbnail URL,Original Page URL,Local Image Path,MD5 (Content)\n" +
		"https://cdn.example.com/a.jpg,https://example.com/images/1,/images/a.jpg,abc\n" +
		",https://example.com/images/2,/images/b.jpg,def\n" + // empty thumbnail
		"https://cdn.example.com/c.jpg,,/images/c.jpg,ghi\n" + // empty detail URL
		"only-one-field\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	s := NewReferenceStore(path, zap.NewNop())
	require.NoError(t, s.Load())
	require.Equal(t, 1, s.Len())

	_, ok := s.Lookup("https://cdn.example.com/a.jpg|https://example.com/images/1")
	require.True(t, ok)
}

func TestReferenceStoreEmptyAndMissingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	missing := NewReferenceStore(filepath.Join(dir, "missing.csv"), zap.NewNop())
	require.NoError(t, missing.Load())
	require.Equal(t, 0, missing.Len())

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	s := NewReferenceStore(empty, zap.NewNop())
	require.NoError(t, s.Load())
	require.Equal(t, 0, s.Len())
}

func TestReferenceStoreInvalidate(t *testing.T) {
	t.Parallel()

	s := NewReferenceStore(filepath.Join(t.TempDir(), "history.csv"), zap.NewNop())
	require.NoError(t, s.Load())

	key := "https://cdn.example.com/a.jpg|https://example.com/images/1"
	s.Insert(key, ReferenceEntry{LocalPath: "/gone.jpg", ContentHash: "abc"})
	s.Invalidate(key)

	_, ok := s.Lookup(key)
	require.False(t, ok)
}

func TestSplitKey(t *testing.T) {
	t.Parallel()

	thumb, detail, ok := SplitKey("https://a/img.jpg|https://b/page")
	require.True(t, ok)
	require.Equal(t, "https://a/img.jpg", thumb)
	require.Equal(t, "https://b/page", detail)

	_, _, ok = SplitKey("no-separator")
	require.False(t, ok)

	_, _, ok = SplitKey("a|b|c")
	require.False(t, ok)
}
