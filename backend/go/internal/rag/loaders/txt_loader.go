package loaders

import (
	"context"
	"path/filepath"
	"strings"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
)

// TxtLoader implements the Loader interface for plain text and Markdown files.
type TxtLoader struct{}

// NewTxtLoader creates a new TxtLoader.
func NewTxtLoader() *TxtLoader {
	return &TxtLoader{}
}

// Load returns the content as a single Document. Invalid UTF-8 sequences are dropped.
func (l *TxtLoader) Load(ctx context.Context, name string, data []byte) ([]*schema.Document, error) {
	text := strings.ToValidUTF8(string(data), "")
	return []*schema.Document{{
		ID:   uuid.NewString(),
		Text: text,
		Metadata: map[string]interface{}{
			schema.MetadataKeyFileName: filepath.Base(name),
		},
	}}, nil
}

// compile-time check to ensure TxtLoader implements the Loader interface
var _ interfaces.Loader = (*TxtLoader)(nil)
