package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeSession replays a fixed sequence of snapshots, one per discovery pass.
type fakeSession struct {
	snapshots []string
	cursor    int
	scrolls   int
	keyword   string
}

func (s *fakeSession) HTML(context.Context) (string, error) {
	snap := s.snapshots[s.cursor]
	if s.cursor < len(s.snapshots)-1 {
		s.cursor++
	}
	return snap, nil
}

func (s *fakeSession) ScrollStep(context.Context) error {
	s.scrolls++
	return nil
}

func (s *fakeSession) InputValue(context.Context, string) (string, bool, error) {
	return s.keyword, s.keyword != "", nil
}

func snapshotWith(urls ...string) string {
	body := `<div class="mx-auto flex justify-center gap-4">`
	for _, u := range urls {
		body += `<div class="relative flex overflow-hidden flex-col border"><a href="/i/` + u + `"><img src="https://cdn.example.com/` + u + `.jpg"></a></div>`
	}
	return body + `</div>`
}

func TestDiscovererIdempotentAcrossPasses(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(NewExtractor(ExtractorConfig{}))
	now := time.Now()

	first, err := d.Discover(snapshotWith("a", "b"), "https://example.com/s", "kw", "/tmp/img", now)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// The page re-renders the same cards plus one new one after a scroll.
	second, err := d.Discover(snapshotWith("a", "b", "c"), "https://example.com/s", "kw", "/tmp/img", now)
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, "https://cdn.example.com/c.jpg", second[0].Ref.ThumbnailURL)
	require.Equal(t, 3, d.SeenCount())
}

func TestDiscovererFillsRowTemplate(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(NewExtractor(ExtractorConfig{BaseURL: "https://example.com"}))
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	tasks, err := d.Discover(snapshotWith("a"), "https://example.com/s?q=cats", "cats", "/data/images", now)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	require.Equal(t, "/data/images", task.TargetDir)
	require.Equal(t, now, task.Row.CapturedAt)
	require.Equal(t, "https://example.com/s?q=cats", task.Row.SearchURL)
	require.Equal(t, task.Ref.ThumbnailURL, task.Row.ThumbnailURL)
	require.Equal(t, "https://example.com/i/a", task.Row.DetailURL)
	require.Equal(t, "cats", task.Row.Keyword)
	require.Empty(t, task.Row.LocalPath, "local fields are filled by pipeline stages")
}

func TestGalleryRunEnqueuesEachReferenceOnce(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		snapshots: []string{
			snapshotWith("a"),
			snapshotWith("a", "b"),
			snapshotWith("a", "b"),
		},
		keyword: "cats",
	}
	run := NewGalleryRun(
		session,
		NewDiscoverer(NewExtractor(ExtractorConfig{})),
		fixedClock{t: time.Now()},
		LoopConfig{MaxScrolls: 3, ScrollBurst: 2, SettleDelay: time.Millisecond},
		zap.NewNop(),
	)

	var got []DownloadTask
	err := run.Run(context.Background(), "https://example.com/s", "/tmp/img", func(_ context.Context, task DownloadTask) error {
		got = append(got, task)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 6, session.scrolls, "two scroll steps per pass")
	require.Equal(t, "cats", got[0].Row.Keyword)
}

func TestGalleryRunSkipsUnrenderedGallery(t *testing.T) {
	t.Parallel()

	session := &fakeSession{
		snapshots: []string{
			"<html><body>spinner</body></html>",
			snapshotWith("a"),
		},
	}
	run := NewGalleryRun(
		session,
		NewDiscoverer(NewExtractor(ExtractorConfig{})),
		fixedClock{t: time.Now()},
		LoopConfig{MaxScrolls: 2, ScrollBurst: 1, SettleDelay: time.Millisecond},
		zap.NewNop(),
	)

	count := 0
	err := run.Run(context.Background(), "https://example.com/s", "/tmp/img", func(context.Context, DownloadTask) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestGalleryRunKeywordFallback(t *testing.T) {
	t.Parallel()

	session := &fakeSession{snapshots: []string{snapshotWith("a")}}
	run := NewGalleryRun(
		session,
		NewDiscoverer(NewExtractor(ExtractorConfig{})),
		fixedClock{t: time.Now()},
		LoopConfig{MaxScrolls: 1, ScrollBurst: 1, SettleDelay: time.Millisecond},
		zap.NewNop(),
	)

	var rows []ResultRow
	err := run.Run(context.Background(), "u", "/tmp", func(_ context.Context, task DownloadTask) error {
		rows = append(rows, task.Row)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "N/A", rows[0].Keyword)
}
