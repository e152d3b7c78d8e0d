package loaders

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// XlsxLoader implements the Loader interface for reading Excel (.xlsx) files.
type XlsxLoader struct{}

// NewXlsxLoader creates a new XlsxLoader.
func NewXlsxLoader() *XlsxLoader {
	return &XlsxLoader{}
}

// Load converts each sheet to a Markdown table and returns a Document per sheet.
// The sheet name is used as the page label.
func (l *XlsxLoader) Load(ctx context.Context, name string, data []byte) ([]*schema.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx %s: %w", name, err)
	}
	defer f.Close()

	var documents []*schema.Document
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil || len(rows) == 0 {
			// Skip sheet if rows can't be read
			continue
		}
		documents = append(documents, &schema.Document{
			ID:   uuid.NewString(),
			Text: markdownTable(rows),
			Metadata: map[string]interface{}{
				schema.MetadataKeyFileName:  filepath.Base(name),
				schema.MetadataKeyPageLabel: sheetName,
			},
		})
	}
	return documents, nil
}

func markdownTable(rows [][]string) string {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	line := func(row []string) string {
		cells := make([]string, width)
		copy(cells, row)
		for i := range cells {
			cells[i] = strings.ReplaceAll(cells[i], "|", `\|`)
		}
		return "| " + strings.Join(cells, " | ") + " |\n"
	}

	var md strings.Builder
	md.WriteString(line(rows[0]))
	md.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
	for _, row := range rows[1:] {
		md.WriteString(line(row))
	}
	return md.String()
}

// compile-time check to ensure XlsxLoader implements the Loader interface
var _ interfaces.Loader = (*XlsxLoader)(nil)
