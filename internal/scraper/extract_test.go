package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const galleryFixture = `<html><body>
<div id="main">
  <div class="mx-auto flex justify-center gap-4">
    <div class="relative flex overflow-hidden flex-col border">
      <a href="/images/101"><img src="https://cdn.example.com/101.jpeg" alt=""></a>
      <div class="flex items-center justify-center p-2 gap-1">
        <button class="mantine-UnstyledButton-root"><span class="mantine-Button-label"><div class="mantine-Text-root">👍</div>87</span></button>
        <button class="mantine-Button-root"><span class="mantine-Button-label"><div class="mantine-Text-root">❤️</div>1.2k</span></button>
        <button class="mantine-Button-root"><span class="mantine-Button-label"><div class="mantine-Text-root">😂</div>3</span></button>
        <button class="mantine-UnstyledButton-root">
          <div class="mantine-Badge-root m-abc"><svg class="tabler-icon tabler-icon-bolt"></svg><div class="mantine-Text-root">256</div></div>
        </button>
      </div>
    </div>
    <div class="relative flex overflow-hidden flex-col border">
      <a href="https://example.com/images/102"><img src="https://cdn.example.com/102.png"></a>
    </div>
    <div class="relative flex overflow-hidden flex-col border">
      <img src="data:image/gif;base64,R0lGOD">
    </div>
  </div>
</div>
</body></html>`

func TestExtractorExtract(t *testing.T) {
	t.Parallel()

	e := NewExtractor(ExtractorConfig{BaseURL: "https://example.com"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cards, err := e.Extract(galleryFixture, "landscape", now)
	require.NoError(t, err)
	require.Len(t, cards, 2, "the data: thumbnail must be discarded")

	first := cards[0]
	require.Equal(t, "https://cdn.example.com/101.jpeg", first.Ref.ThumbnailURL)
	require.Equal(t, "https://example.com/images/101", first.Ref.DetailURL)
	require.Equal(t, "landscape", first.Ref.Keyword)
	require.Equal(t, now, first.Ref.DiscoveredAt)
	require.Equal(t, 87, first.Reactions.Likes)
	require.Equal(t, 1200, first.Reactions.Hearts)
	require.Equal(t, 3, first.Reactions.Laughs)
	require.Equal(t, 0, first.Reactions.Cries)
	require.Equal(t, 256, first.Reactions.Tips)

	second := cards[1]
	require.Equal(t, "https://example.com/images/102", second.Ref.DetailURL, "absolute hrefs pass through")
	require.Equal(t, ReactionCounts{}, second.Reactions, "missing buttons default to zero")
}

func TestExtractorNoGallery(t *testing.T) {
	t.Parallel()

	e := NewExtractor(ExtractorConfig{})
	_, err := e.Extract("<html><body><p>loading...</p></body></html>", "", time.Now())
	require.ErrorIs(t, err, ErrNoGallery)
}

func TestExtractorCardWithoutAnchor(t *testing.T) {
	t.Parallel()

	snapshot := `<div class="mx-auto flex justify-center gap-4">
		<div class="relative flex overflow-hidden flex-col border"><img src="https://cdn.example.com/bare.jpg"></div>
	</div>`
	e := NewExtractor(ExtractorConfig{})
	cards, err := e.Extract(snapshot, "", time.Now())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Empty(t, cards[0].Ref.DetailURL)
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"":          0,
		"abc":       0,
		"87":        87,
		" 87 ":      87,
		"1.2k":      1200,
		"3K":        3000,
		"👍 42":      42,
		"12 people": 12,
	}
	for raw, want := range cases {
		require.Equal(t, want, ParseCount(raw), "input %q", raw)
	}
}

func TestFileHyperlink(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", FileHyperlink(""))
	require.Equal(t, "file:///images/a.jpg", FileHyperlink("/images/a.jpg"))
	require.Equal(t, "file:///C:/images/a.jpg", FileHyperlink(`C:/images/a.jpg`))
}
