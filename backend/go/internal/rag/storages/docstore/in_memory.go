package docstore

import (
	"context"
	"sync"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"
)

// InMemoryDocStore is a thread-safe, in-memory implementation of the DocStore interface.
// Chunks are partitioned by case id.
type InMemoryDocStore struct {
	mu    sync.RWMutex
	cases map[string]map[string]*schema.Document
}

// NewInMemoryDocStore creates a new instance of InMemoryDocStore.
func NewInMemoryDocStore() *InMemoryDocStore {
	return &InMemoryDocStore{cases: make(map[string]map[string]*schema.Document)}
}

// Add adds a map of chunks to the store for a specific case.
func (s *InMemoryDocStore) Add(_ context.Context, caseID string, docs map[string]*schema.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.cases[caseID]
	if !ok {
		bucket = make(map[string]*schema.Document, len(docs))
		s.cases[caseID] = bucket
	}
	for id, doc := range docs {
		bucket[id] = doc
	}
	return nil
}

// Get retrieves chunks by id. Unknown ids are absent from the result.
func (s *InMemoryDocStore) Get(_ context.Context, caseID string, ids []string) (map[string]*schema.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]*schema.Document, len(ids))
	for _, id := range ids {
		if doc, ok := s.cases[caseID][id]; ok {
			result[id] = doc
		}
	}
	return result, nil
}

// DeleteDocument removes every chunk that belongs to a document.
func (s *InMemoryDocStore) DeleteDocument(_ context.Context, caseID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, doc := range s.cases[caseID] {
		if doc.MetaString(schema.MetadataKeyDocumentID) == documentID {
			delete(s.cases[caseID], id)
		}
	}
	return nil
}

// Len 返回某个案件下的块数量。
func (s *InMemoryDocStore) Len(caseID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases[caseID])
}

// compile-time check to ensure InMemoryDocStore implements the DocStore interface
var _ interfaces.DocStore = (*InMemoryDocStore)(nil)
