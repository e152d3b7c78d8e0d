package embeddings

import (
	"context"
	"fmt"

	"CaseForAI/backend/go/internal/embedding"
	"CaseForAI/backend/go/internal/rag/interfaces"
)

// BatchAdapter adapts an embedding.Embedding provider to the EmbeddingModel interface,
// splitting large inputs into provider-sized batches.
type BatchAdapter struct {
	client    embedding.Embedding
	batchSize int
}

// NewBatchAdapter creates a new adapter. A non-positive batchSize sends everything in one call.
func NewBatchAdapter(client embedding.Embedding, batchSize int) *BatchAdapter {
	return &BatchAdapter{client: client, batchSize: batchSize}
}

// Embed calls EmbedBatch once per batch and concatenates the results in input order.
func (a *BatchAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	size := a.batchSize
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := a.client.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("embedding batch %d-%d: expected %d vectors, got %d", start, end, end-start, len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// compile-time check to ensure BatchAdapter implements the EmbeddingModel interface
var _ interfaces.EmbeddingModel = (*BatchAdapter)(nil)
