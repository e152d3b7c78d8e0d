package loaders

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

// PdfLoader implements the Loader interface for reading PDF files.
type PdfLoader struct{}

// NewPdfLoader creates a new PdfLoader.
func NewPdfLoader() *PdfLoader {
	return &PdfLoader{}
}

// Load extracts the plain text of every page and returns a Document for each
// non-empty page, labelled with its 1-based page number.
func (l *PdfLoader) Load(ctx context.Context, name string, data []byte) ([]*schema.Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", name, err)
	}

	var documents []*schema.Document
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %s: %w", i, name, err)
		}
		if text == "" {
			continue
		}
		documents = append(documents, &schema.Document{
			ID:   uuid.NewString(),
			Text: text,
			Metadata: map[string]interface{}{
				schema.MetadataKeyFileName:  filepath.Base(name),
				schema.MetadataKeyPageLabel: strconv.Itoa(i),
			},
		})
	}
	return documents, nil
}

// compile-time check to ensure PdfLoader implements the Loader interface
var _ interfaces.Loader = (*PdfLoader)(nil)
