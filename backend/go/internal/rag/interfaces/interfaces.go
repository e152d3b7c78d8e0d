package interfaces

import (
	"context"

	"CaseForAI/backend/go/internal/rag/schema"
)

// Loader converts raw file bytes into a list of Document pages.
type Loader interface {
	Load(ctx context.Context, name string, data []byte) ([]*schema.Document, error)
}

// Splitter is the interface for splitting a list of Documents into smaller chunks.
type Splitter interface {
	Split(ctx context.Context, docs []*schema.Document) ([]*schema.Document, error)
}

// DocStore stores chunk text by chunk id, partitioned by case.
type DocStore interface {
	Add(ctx context.Context, caseID string, docs map[string]*schema.Document) error
	Get(ctx context.Context, caseID string, ids []string) (map[string]*schema.Document, error)
	DeleteDocument(ctx context.Context, caseID, documentID string) error
}

// VectorStore is the interface for storing and querying chunk vectors.
type VectorStore interface {
	Add(ctx context.Context, docs []*schema.Document) error
	Query(ctx context.Context, embedding []float32, topK int, filters map[string]interface{}) ([]*schema.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// EmbeddingModel is the interface for a text embedding model.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
