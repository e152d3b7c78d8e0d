package pipeline

import (
	"context"
	"fmt"
	"strings"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"
	"CaseForAI/backend/go/pkg/logger"
)

// RetrievalPipeline orchestrates the process of retrieving relevant chunks of a case for a query.
type RetrievalPipeline struct {
	embedder    interfaces.EmbeddingModel
	vectorStore interfaces.VectorStore
	docStore    interfaces.DocStore
	log         *logger.Logger
}

// NewRetrievalPipeline creates a new RetrievalPipeline.
func NewRetrievalPipeline(
	embedder interfaces.EmbeddingModel,
	vectorStore interfaces.VectorStore,
	docStore interfaces.DocStore,
	log *logger.Logger,
) *RetrievalPipeline {
	return &RetrievalPipeline{
		embedder:    embedder,
		vectorStore: vectorStore,
		docStore:    docStore,
		log:         log,
	}
}

// Run embeds the query, searches the case's vectors and returns the hits with their text,
// in vector-store order. Hits whose text is missing from the DocStore are dropped.
func (p *RetrievalPipeline) Run(ctx context.Context, query, caseID string, topK int) ([]*schema.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		topK = 5
	}

	// 1. Embed the query
	queryEmbeddings, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(queryEmbeddings) == 0 {
		return nil, fmt.Errorf("failed to embed query: no embedding returned")
	}

	// 2. Query the VectorStore scoped to the case
	filters := map[string]interface{}{schema.MetadataKeyCaseID: caseID}
	hits, err := p.vectorStore.Query(ctx, queryEmbeddings[0], topK, filters)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []*schema.Document{}, nil
	}

	// 3. Enrich the results with full text from the DocStore
	ids := make([]string, len(hits))
	for i, doc := range hits {
		ids[i] = doc.ID
	}
	full, err := p.docStore.Get(ctx, caseID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks from doc store: %w", err)
	}

	results := make([]*schema.Document, 0, len(hits))
	for _, hit := range hits {
		doc, ok := full[hit.ID]
		if !ok {
			p.log.Warn(fmt.Sprintf("chunk %s of case %s is missing from the doc store", hit.ID, caseID))
			continue
		}
		meta := schema.CopyMetadata(doc.Metadata)
		for k, v := range hit.Metadata {
			meta[k] = v
		}
		results = append(results, &schema.Document{ID: doc.ID, Text: doc.Text, Metadata: meta})
	}
	return results, nil
}
