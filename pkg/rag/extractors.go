package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// maxCellsPerSheet bounds spreadsheet extraction so one dense workbook
// cannot dominate an index.
const maxCellsPerSheet = 1000

// IsExtractable reports whether the file is a binary document format
// that must pass through an extractor before token counting.
func IsExtractable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".xlsx":
		return true
	default:
		return false
	}
}

// ExtractText converts a binary document to plain text.
func ExtractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(ctx, path)
	case ".docx":
		return extractDocx(path)
	case ".xlsx":
		return extractXlsx(ctx, path)
	default:
		return "", fmt.Errorf("no extractor for %s", filepath.Ext(path))
	}
}

func extractPDF(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// One unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no extractable text in PDF")
	}
	return strings.Join(parts, "\n\n"), nil
}

func extractDocx(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("no extractable text in Word document")
	}
	return content, nil
}

func extractXlsx(ctx context.Context, path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to parse Excel document: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheetName := range f.GetSheetList() {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}

		var sheet strings.Builder
		fmt.Fprintf(&sheet, "--- Sheet: %s ---\n", sheetName)
		cells := 0
		for _, row := range rows {
			if cells >= maxCellsPerSheet {
				sheet.WriteString("... (truncated)\n")
				break
			}
			for _, cell := range row {
				if cells >= maxCellsPerSheet {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					sheet.WriteString(text)
					sheet.WriteString("\t")
					cells++
				}
			}
			sheet.WriteString("\n")
		}
		if cells > 0 {
			parts = append(parts, strings.TrimRight(sheet.String(), "\n"))
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no extractable text in Excel document")
	}
	return strings.Join(parts, "\n\n"), nil
}
