// Package export writes the per-run result workbook.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/qi525/civitai-scraper/internal/scraper"
)

// Config controls workbook output.
type Config struct {
	// Dir is where workbooks land; created on demand.
	Dir string
	// SheetName names the single data sheet (default "Results").
	SheetName string
}

const (
	defaultSheetName = "Results"
	minColumnWidth   = 12.0
	maxColumnWidth   = 80.0
	// localLinkLabel keeps the hyperlink cell readable instead of showing
	// the full file:// URL.
	localLinkLabel = "open local file"
)

var columnHeaders = []string{
	"Scraped At",
	"Search URL",
	"Thumbnail URL",
	"Local Image",
	"Detail Page URL",
	"Likes",
	"Hearts",
	"Laughs",
	"Cries",
	"Tips",
	"Keyword",
	"MD5 (Content)",
}

// Exporter renders result rows into a timestamped .xlsx workbook.
type Exporter struct {
	cfg    Config
	logger *zap.Logger
}

// New builds an Exporter.
func New(cfg Config, logger *zap.Logger) *Exporter {
	if cfg.SheetName == "" {
		cfg.SheetName = defaultSheetName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{cfg: cfg, logger: logger}
}

// Export writes one workbook named after startedAt and returns its path.
// An empty row set still produces a workbook with just the header row.
func (e *Exporter) Export(rows []scraper.ResultRow, startedAt time.Time) (string, error) {
	if err := os.MkdirAll(e.cfg.Dir, 0o750); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	book := excelize.NewFile()
	defer func() {
		if err := book.Close(); err != nil {
			e.logger.Warn("close workbook", zap.Error(err))
		}
	}()

	sheet := e.cfg.SheetName
	index, err := book.NewSheet(sheet)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	book.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := book.DeleteSheet("Sheet1"); err != nil {
			return "", fmt.Errorf("drop default sheet: %w", err)
		}
	}

	if err := e.writeHeader(book, sheet); err != nil {
		return "", err
	}
	widths := headerWidths()
	for i, row := range rows {
		if err := e.writeRow(book, sheet, i+2, row, widths); err != nil {
			return "", err
		}
	}
	if err := applyWidths(book, sheet, widths); err != nil {
		return "", err
	}

	path := filepath.Join(e.cfg.Dir, startedAt.Format("20060102_150405")+".xlsx")
	if err := book.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	e.logger.Info("workbook written",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return path, nil
}

func (e *Exporter) writeHeader(book *excelize.File, sheet string) error {
	style, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, header := range columnHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := book.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("write header %q: %w", header, err)
		}
		if err := book.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("style header %q: %w", header, err)
		}
	}
	return nil
}

func (e *Exporter) writeRow(book *excelize.File, sheet string, rowNum int, row scraper.ResultRow, widths []float64) error {
	values := []string{
		row.CapturedAt.Format(time.RFC3339),
		row.SearchURL,
		row.ThumbnailURL,
		localLinkLabel,
		row.DetailURL,
		strconv.Itoa(row.Reactions.Likes),
		strconv.Itoa(row.Reactions.Hearts),
		strconv.Itoa(row.Reactions.Laughs),
		strconv.Itoa(row.Reactions.Cries),
		strconv.Itoa(row.Reactions.Tips),
		row.Keyword,
		row.ContentHash,
	}
	links := map[int]string{
		2: row.SearchURL,
		3: row.ThumbnailURL,
		4: row.LocalHyperlink,
		5: row.DetailURL,
	}

	for i, value := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, rowNum)
		if err != nil {
			return err
		}
		if err := book.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("write cell %s: %w", cell, err)
		}
		if link := links[i+1]; link != "" {
			if err := book.SetCellHyperLink(sheet, cell, link, "External"); err != nil {
				return fmt.Errorf("link cell %s: %w", cell, err)
			}
		}
		if w := float64(len(value)) + 2; w > widths[i] {
			widths[i] = w
		}
	}
	return nil
}

func headerWidths() []float64 {
	widths := make([]float64, len(columnHeaders))
	for i, header := range columnHeaders {
		widths[i] = float64(len(header)) + 2
	}
	return widths
}

// applyWidths fits each column to its longest value, clamped so URL columns
// never blow up the sheet.
func applyWidths(book *excelize.File, sheet string, widths []float64) error {
	for i, w := range widths {
		if w < minColumnWidth {
			w = minColumnWidth
		}
		if w > maxColumnWidth {
			w = maxColumnWidth
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := book.SetColWidth(sheet, name, name, w); err != nil {
			return fmt.Errorf("set width for column %s: %w", name, err)
		}
	}
	return nil
}
