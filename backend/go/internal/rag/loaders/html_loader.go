package loaders

import (
	"context"
	"fmt"
	"path/filepath"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/google/uuid"
)

// HTMLLoader converts an HTML page to Markdown so headings, lists and tables survive chunking.
type HTMLLoader struct{}

// NewHTMLLoader creates a new HTMLLoader.
func NewHTMLLoader() *HTMLLoader {
	return &HTMLLoader{}
}

// Load converts the page and returns it as a single Document.
func (l *HTMLLoader) Load(ctx context.Context, name string, data []byte) ([]*schema.Document, error) {
	text, err := htmlToMarkdown(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert html %s: %w", name, err)
	}
	return []*schema.Document{{
		ID:   uuid.NewString(),
		Text: text,
		Metadata: map[string]interface{}{
			schema.MetadataKeyFileName: filepath.Base(name),
		},
	}}, nil
}

func htmlToMarkdown(data []byte) (string, error) {
	return htmltomarkdown.ConvertString(string(data))
}

var _ interfaces.Loader = (*HTMLLoader)(nil)
