package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"CaseForAI/backend/go/internal/rag/schema"
	"CaseForAI/backend/go/internal/rag/splitters"
	"CaseForAI/backend/go/internal/rag/storages/docstore"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder 把文本映射为三个关键词的出现次数。
type keywordEmbedder struct{ fail bool }

var keywords = []string{"award", "citation", "salary"}

func (e keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, errors.New("embedding provider down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(keywords))
		for j, k := range keywords {
			v[j] = float32(strings.Count(strings.ToLower(t), k))
		}
		out[i] = v
	}
	return out, nil
}

type memoryVectors struct {
	mu   sync.Mutex
	docs []*schema.Document
}

func (m *memoryVectors) Add(_ context.Context, docs []*schema.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, docs...)
	return nil
}

func (m *memoryVectors) Query(_ context.Context, emb []float32, topK int, filters map[string]interface{}) ([]*schema.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type hit struct {
		doc  *schema.Document
		dist float32
	}
	var hits []hit
	for _, d := range m.docs {
		if d.MetaString(schema.MetadataKeyCaseID) != filters[schema.MetadataKeyCaseID] {
			continue
		}
		var dist float32
		for i := range emb {
			diff := emb[i] - d.Embedding[i]
			dist += diff * diff
		}
		hits = append(hits, hit{d, dist})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	var out []*schema.Document
	for i := 0; i < len(hits) && i < topK; i++ {
		out = append(out, &schema.Document{ID: hits[i].doc.ID, Metadata: map[string]interface{}{schema.MetadataKeyScore: hits[i].dist}})
	}
	return out, nil
}

func (m *memoryVectors) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.docs[:0]
	for _, d := range m.docs {
		if d.MetaString(schema.MetadataKeyDocumentID) != documentID {
			kept = append(kept, d)
		}
	}
	m.docs = kept
	return nil
}

func newPipelines(t *testing.T, embedder keywordEmbedder) (*IndexingPipeline, *RetrievalPipeline, *memoryVectors, *docstore.InMemoryDocStore) {
	t.Helper()
	splitter, err := splitters.NewTextSplitter(40, 0)
	require.NoError(t, err)
	vectors := &memoryVectors{}
	docs := docstore.NewInMemoryDocStore()
	return NewIndexingPipeline(splitter, embedder, docs, vectors, logger.Nop()),
		NewRetrievalPipeline(embedder, vectors, docs, logger.Nop()),
		vectors, docs
}

const evidence = "She won the national award in 2019.\n\nHer papers have 4000 citation records.\n\nHer salary is in the top decile."

func TestIndexingPipeline_IndexAndRetrieve(t *testing.T) {
	indexer, retriever, vectors, docs := newPipelines(t, keywordEmbedder{})
	ctx := context.Background()

	var stages []int
	n, err := indexer.Run(ctx, Source{CaseID: "c1", DocumentID: "d1", OwnerID: "7", FileName: "evidence.txt", Data: []byte(evidence)},
		func(_ string, pct int) { stages = append(stages, pct) })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, docs.Len("c1"))
	assert.Len(t, vectors.docs, 3)
	assert.Equal(t, 100, stages[len(stages)-1])

	results, err := retriever.Run(ctx, "citation count", "c1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "citation")
	assert.Equal(t, "d1", results[0].MetaString(schema.MetadataKeyDocumentID))
	assert.Contains(t, results[0].Metadata, schema.MetadataKeyScore)

	// 其他案件查不到
	results, err = retriever.Run(ctx, "citation", "c2", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndexingPipeline_ReindexReplacesChunks(t *testing.T) {
	indexer, _, vectors, docs := newPipelines(t, keywordEmbedder{})
	ctx := context.Background()

	_, err := indexer.Run(ctx, Source{CaseID: "c1", DocumentID: "d1", FileName: "a.txt", Data: []byte(evidence)}, nil)
	require.NoError(t, err)
	n, err := indexer.Run(ctx, Source{CaseID: "c1", DocumentID: "d1", Text: "Draft about the award."}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, vectors.docs, 1)
	assert.Equal(t, 1, docs.Len("c1"))
}

func TestIndexingPipeline_Errors(t *testing.T) {
	indexer, _, vectors, _ := newPipelines(t, keywordEmbedder{fail: true})
	_, err := indexer.Run(context.Background(), Source{CaseID: "c1", DocumentID: "d1", Text: "award"}, nil)
	assert.ErrorContains(t, err, "embedding provider down")
	assert.Empty(t, vectors.docs)

	n, err := indexer.Run(context.Background(), Source{CaseID: "c1", DocumentID: "d2", Text: "   "}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRetrievalPipeline_RejectsEmptyQuery(t *testing.T) {
	_, retriever, _, _ := newPipelines(t, keywordEmbedder{})
	_, err := retriever.Run(context.Background(), "  ", "c1", 3)
	assert.Error(t, err)
}
