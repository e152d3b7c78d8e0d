package pipeline

import (
	"context"
	"fmt"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/loaders"
	"CaseForAI/backend/go/internal/rag/schema"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Source is one case document to index. Drafts carry Text; uploads carry Data.
type Source struct {
	CaseID     string
	DocumentID string
	OwnerID    string
	FileName   string
	Data       []byte
	Text       string
}

// ProgressFunc receives human-readable progress updates. It may be nil.
type ProgressFunc func(message string, percent int)

// IndexingPipeline orchestrates the process of loading, splitting, embedding, and storing documents.
type IndexingPipeline struct {
	splitter    interfaces.Splitter
	embedder    interfaces.EmbeddingModel
	docStore    interfaces.DocStore
	vectorStore interfaces.VectorStore
	log         *logger.Logger
}

// NewIndexingPipeline creates a new IndexingPipeline.
func NewIndexingPipeline(
	splitter interfaces.Splitter,
	embedder interfaces.EmbeddingModel,
	docStore interfaces.DocStore,
	vectorStore interfaces.VectorStore,
	log *logger.Logger,
) *IndexingPipeline {
	return &IndexingPipeline{
		splitter:    splitter,
		embedder:    embedder,
		docStore:    docStore,
		vectorStore: vectorStore,
		log:         log,
	}
}

// Run indexes a document and returns the number of chunks stored.
// Existing chunks of the document are removed first, so Run is also the re-index path.
func (p *IndexingPipeline) Run(ctx context.Context, src Source, progress ProgressFunc) (int, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	log := p.log.WithPayload(map[string]interface{}{"case_id": src.CaseID, "document_id": src.DocumentID})

	// 1. Load the data
	pages, err := p.load(ctx, src)
	if err != nil {
		return 0, err
	}
	progress(fmt.Sprintf("Loaded %d pages", len(pages)), 10)

	// 2. Remove previous chunks
	if err := p.Delete(ctx, src.CaseID, src.DocumentID); err != nil {
		return 0, err
	}

	// 3. Split documents into chunks
	for _, page := range pages {
		if page.Metadata == nil {
			page.Metadata = make(map[string]interface{})
		}
		page.Metadata[schema.MetadataKeyCaseID] = src.CaseID
		page.Metadata[schema.MetadataKeyDocumentID] = src.DocumentID
		page.Metadata[schema.MetadataKeyOwnerID] = src.OwnerID
	}
	chunks, err := p.splitter.Split(ctx, pages)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		log.Info("document has no text to index")
		progress("No text to index", 100)
		return 0, nil
	}
	progress(fmt.Sprintf("Split into %d chunks", len(chunks)), 25)

	// 4. Embed the chunks
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	embeddings, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(embeddings))
	}
	for i, chunk := range chunks {
		chunk.Embedding = embeddings[i]
	}
	progress("Embedded all chunks", 60)

	// 5. Store the chunks concurrently
	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		chunkMap := make(map[string]*schema.Document, len(chunks))
		for _, chunk := range chunks {
			chunkMap[chunk.ID] = chunk
		}
		if err := p.docStore.Add(gCtx, src.CaseID, chunkMap); err != nil {
			return fmt.Errorf("failed to add chunks to DocStore: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := p.vectorStore.Add(gCtx, chunks); err != nil {
			return fmt.Errorf("failed to add chunks to VectorStore: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	log.Info(fmt.Sprintf("indexed %d chunks", len(chunks)))
	progress(fmt.Sprintf("Indexed %d chunks", len(chunks)), 100)
	return len(chunks), nil
}

// Delete removes the vectors and chunk text of a document from both stores.
func (p *IndexingPipeline) Delete(ctx context.Context, caseID, documentID string) error {
	eg, gCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return p.vectorStore.DeleteDocument(gCtx, documentID)
	})
	eg.Go(func() error {
		return p.docStore.DeleteDocument(gCtx, caseID, documentID)
	})
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("failed to remove previous chunks: %w", err)
	}
	return nil
}

func (p *IndexingPipeline) load(ctx context.Context, src Source) ([]*schema.Document, error) {
	if src.Text != "" || len(src.Data) == 0 {
		return []*schema.Document{{
			ID:   uuid.NewString(),
			Text: src.Text,
			Metadata: map[string]interface{}{
				schema.MetadataKeyFileName: src.FileName,
			},
		}}, nil
	}
	return loaders.LoadFile(ctx, src.FileName, src.Data)
}
