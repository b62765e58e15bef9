package scraper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoGallery indicates the snapshot does not contain the gallery container,
// usually because the page has not finished rendering yet.
var ErrNoGallery = errors.New("gallery container not found in snapshot")

// ExtractorConfig holds the page-specific selectors. These are glue, not
// contract: every selector has a working default for the current page layout
// and can be overridden from configuration when the site changes.
type ExtractorConfig struct {
	// ContainerSelector scopes extraction to the gallery grid.
	ContainerSelector string
	// CardSelector matches one image card inside the container.
	CardSelector string
	// BaseURL prefixes relative detail-page links.
	BaseURL string
}

// DefaultExtractorConfig returns the selectors for the current gallery layout.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ContainerSelector: "div.mx-auto.flex.justify-center.gap-4",
		CardSelector:      `div[class*="flex-col"][class*="overflow-hidden"]`,
		BaseURL:           "https://civitai.com",
	}
}

// Extractor turns one HTML snapshot into the cards it contains. It is a pure
// function of the snapshot; the per-run seen set lives in the Discoverer so
// extraction stays trivially testable against canned fixtures.
type Extractor struct {
	cfg ExtractorConfig
}

// NewExtractor builds an Extractor, filling empty selectors with defaults.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	defaults := DefaultExtractorConfig()
	if cfg.ContainerSelector == "" {
		cfg.ContainerSelector = defaults.ContainerSelector
	}
	if cfg.CardSelector == "" {
		cfg.CardSelector = defaults.CardSelector
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	return &Extractor{cfg: cfg}
}

// Extract parses the snapshot and returns every addressable card in document
// order. Cards without an http(s) thumbnail URL are discarded silently;
// reaction extraction is best-effort and never fails a card.
func (e *Extractor) Extract(snapshot, keyword string, now time.Time) ([]Card, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}

	container := doc.Find(e.cfg.ContainerSelector).First()
	if container.Length() == 0 {
		return nil, ErrNoGallery
	}

	var cards []Card
	container.Find(e.cfg.CardSelector).Each(func(_ int, sel *goquery.Selection) {
		img := sel.Find("img").First()
		if img.Length() == 0 {
			return
		}
		thumb, _ := img.Attr("src")
		if !strings.HasPrefix(thumb, "http") {
			return
		}
		detail := e.detailURL(img)
		cards = append(cards, Card{
			Ref: ImageReference{
				ThumbnailURL: thumb,
				DetailURL:    detail,
				Keyword:      keyword,
				DiscoveredAt: now,
			},
			Reactions: extractReactions(sel),
		})
	})
	return cards, nil
}

// detailURL resolves the detail-page link wrapping the thumbnail, prefixing
// relative hrefs with the configured base.
func (e *Extractor) detailURL(img *goquery.Selection) string {
	anchor := img.ParentsFiltered("a").First()
	if anchor.Length() == 0 {
		return ""
	}
	href, _ := anchor.Attr("href")
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return e.cfg.BaseURL + href
}

// countPattern pulls the leading numeric token out of a button label,
// tolerating "1.2k" style thousands suffixes.
var countPattern = regexp.MustCompile(`(\d[\d.]*)([kK]?)`)

// extractReactions sums the recognized reaction buttons of a card. Unmatched
// glyphs and missing sub-structure contribute zero, never an error.
func extractReactions(card *goquery.Selection) ReactionCounts {
	var counts ReactionCounts
	card.Find("button").Each(func(_ int, button *goquery.Selection) {
		label := button.Find("span.mantine-Button-label").First()
		if label.Length() > 0 {
			glyphs := label.Find("div.mantine-Text-root").First().Text()
			count := ParseCount(label.Text())
			switch {
			case strings.Contains(glyphs, "👍"):
				counts.Likes += count
			case strings.Contains(glyphs, "❤️"):
				counts.Hearts += count
			case strings.Contains(glyphs, "😂"):
				counts.Laughs += count
			case strings.Contains(glyphs, "😢"):
				counts.Cries += count
			}
		}
		counts.Tips += tipCount(button)
	})
	return counts
}

// tipCount reads the bolt-badge tip counter, which renders as a badge rather
// than a plain button label.
func tipCount(button *goquery.Selection) int {
	badge := button.Find(`div[class*="mantine-Badge-root"]`).First()
	if badge.Length() == 0 {
		return 0
	}
	if badge.Find(`svg[class*="tabler-icon-bolt"]`).Length() == 0 {
		return 0
	}
	return ParseCount(badge.Find("div.mantine-Text-root").First().Text())
}

// ParseCount converts a display count like "87", "1.2k", or "3K" into an
// integer. Unparseable input yields zero.
func ParseCount(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	match := countPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	if strings.EqualFold(match[2], "k") {
		value *= 1000
	}
	return int(value)
}
