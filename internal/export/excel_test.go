package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/scraper"
)

func sampleRow() scraper.ResultRow {
	return scraper.ResultRow{
		CapturedAt:     time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
		SearchURL:      "https://civitai.com/images?tags=landscape",
		ThumbnailURL:   "https://image.civitai.com/xG1/width=450/abc.jpeg",
		LocalPath:      "/data/images/0123abcd.jpeg",
		LocalHyperlink: "file:///data/images/0123abcd.jpeg",
		DetailURL:      "https://civitai.com/images/12345",
		Reactions:      scraper.ReactionCounts{Likes: 87, Hearts: 1200, Laughs: 3, Cries: 1, Tips: 256},
		Keyword:        "landscape",
		ContentHash:    "0123abcd0123abcd0123abcd0123abcd",
	}
}

func TestExportWritesWorkbook(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	exp := New(Config{Dir: filepath.Join(dir, "results")}, zap.NewNop())

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	path, err := exp.Export([]scraper.ResultRow{sampleRow()}, started)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "results", "20260301_093000.xlsx"), path)

	book, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, book.Close()) }()

	rows, err := book.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, columnHeaders, rows[0])

	got := rows[1]
	require.Equal(t, "2026-03-01T09:30:00Z", got[0])
	require.Equal(t, localLinkLabel, got[3])
	require.Equal(t, "1200", got[6])
	require.Equal(t, "0123abcd0123abcd0123abcd0123abcd", got[11])

	link, target, err := book.GetCellHyperLink("Results", "D2")
	require.NoError(t, err)
	require.True(t, link)
	require.Equal(t, "file:///data/images/0123abcd.jpeg", target)
}

func TestExportEmptyRowsStillProducesHeader(t *testing.T) {
	t.Parallel()

	exp := New(Config{Dir: t.TempDir()}, zap.NewNop())
	path, err := exp.Export(nil, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	book, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, book.Close()) }()

	rows, err := book.GetRows("Results")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestExportSkipsHyperlinkForEmptyTarget(t *testing.T) {
	t.Parallel()

	row := sampleRow()
	row.LocalHyperlink = ""
	exp := New(Config{Dir: t.TempDir()}, zap.NewNop())

	path, err := exp.Export([]scraper.ResultRow{row}, time.Now())
	require.NoError(t, err)

	book, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, book.Close()) }()

	link, _, err := book.GetCellHyperLink("Results", "D2")
	require.NoError(t, err)
	require.False(t, link)
}
