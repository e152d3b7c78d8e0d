package splitters

import (
	"context"
	"fmt"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
)

// TextSplitter splits documents with ChunkText.
type TextSplitter struct {
	ChunkSize    int
	ChunkOverlap int
}

var _ interfaces.Splitter = (*TextSplitter)(nil)

// NewTextSplitter validates the sizes up front so Split cannot fail on configuration.
func NewTextSplitter(chunkSize, chunkOverlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, ErrInvalidOverlap
	}
	return &TextSplitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}, nil
}

// Split cuts every document into chunks. chunk_number counts across the whole input,
// so the pages of one uploaded file are numbered continuously.
func (s *TextSplitter) Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error) {
	var chunkedDocs []*schema.Document
	number := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, err := ChunkText(doc.Text, s.ChunkSize, s.ChunkOverlap)
		if err != nil {
			return nil, fmt.Errorf("failed to split document %s: %w", doc.ID, err)
		}
		for _, chunk := range chunks {
			number++
			meta := schema.CopyMetadata(doc.Metadata)
			meta[schema.MetadataKeyOriginalDocID] = doc.ID
			meta[schema.MetadataKeyChunkNumber] = number
			chunkedDocs = append(chunkedDocs, &schema.Document{
				ID:       uuid.NewString(),
				Text:     chunk,
				Metadata: meta,
			})
		}
	}
	return chunkedDocs, nil
}
