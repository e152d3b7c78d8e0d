package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// Schema fields for the Milvus collection that we want to filter on or output.
	FieldID         = "id"
	FieldEmbedding  = "embedding"
	FieldCaseID     = schema.MetadataKeyCaseID
	FieldDocumentID = schema.MetadataKeyDocumentID
	FieldOwnerID    = schema.MetadataKeyOwnerID
)

// filterable 是允许出现在过滤表达式中的字段。
var filterable = map[string]bool{FieldCaseID: true, FieldDocumentID: true, FieldOwnerID: true}

// MilvusAPI is the subset of client.Client used by the store.
type MilvusAPI interface {
	Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
		vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
		opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
}

// MilvusStore implements the VectorStore interface on a Milvus collection.
// Only ids and scoping fields are stored in Milvus; chunk text lives in the DocStore.
type MilvusStore struct {
	log         *logger.Logger
	client      MilvusAPI
	collection  string
	vectorField string
}

// NewMilvusStore creates a new MilvusStore adapter.
func NewMilvusStore(c MilvusAPI, collectionName, vectorField string, log *logger.Logger) (*MilvusStore, error) {
	if c == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	if vectorField == "" {
		vectorField = FieldEmbedding
	}
	return &MilvusStore{log: log, client: c, collection: collectionName, vectorField: vectorField}, nil
}

// Add inserts a list of documents into the Milvus collection.
func (s *MilvusStore) Add(ctx context.Context, docs []*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]string, len(docs))
	embeddings := make([][]float32, len(docs))
	caseIDs := make([]string, len(docs))
	documentIDs := make([]string, len(docs))
	ownerIDs := make([]string, len(docs))

	dim := len(docs[0].Embedding)
	for i, doc := range docs {
		if len(doc.Embedding) == 0 || len(doc.Embedding) != dim {
			return fmt.Errorf("document %s has embedding of dimension %d, want %d", doc.ID, len(doc.Embedding), dim)
		}
		ids[i] = doc.ID
		embeddings[i] = doc.Embedding
		caseIDs[i] = doc.MetaString(FieldCaseID)
		documentIDs[i] = doc.MetaString(FieldDocumentID)
		ownerIDs[i] = doc.MetaString(FieldOwnerID)
	}

	s.log.Debug(fmt.Sprintf("Inserting %d chunks into Milvus collection: %s", len(docs), s.collection))
	_, err := s.client.Insert(ctx, s.collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(s.vectorField, dim, embeddings),
		entity.NewColumnVarChar(FieldCaseID, caseIDs),
		entity.NewColumnVarChar(FieldDocumentID, documentIDs),
		entity.NewColumnVarChar(FieldOwnerID, ownerIDs),
	)
	if err != nil {
		return fmt.Errorf("failed to insert data into Milvus: %w", err)
	}
	return nil
}

// Query performs a vector search with metadata filtering. Results carry the score
// and scoping fields in their metadata; Text is left empty.
func (s *MilvusStore) Query(ctx context.Context, embedding []float32, topK int, filters map[string]interface{}) ([]*schema.Document, error) {
	filterExpr, err := BuildFilterExpression(filters)
	if err != nil {
		return nil, err
	}

	searchParams, _ := entity.NewIndexIvfFlatSearchParam(10)
	outputFields := []string{FieldID, FieldCaseID, FieldDocumentID}

	searchResults, err := s.client.Search(
		ctx, s.collection, []string{}, filterExpr, outputFields,
		[]entity.Vector{entity.FloatVector(embedding)},
		s.vectorField, entity.L2, topK, searchParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Milvus: %w", err)
	}

	var results []*schema.Document
	for _, res := range searchResults {
		idCol, ok := res.Fields.GetColumn(FieldID).(*entity.ColumnVarChar)
		if !ok {
			s.log.Warn("Search result is missing ID field or has wrong type, skipping.")
			continue
		}
		ids := idCol.Data()
		caseIDs := varcharData(res.Fields.GetColumn(FieldCaseID))
		documentIDs := varcharData(res.Fields.GetColumn(FieldDocumentID))

		for i := 0; i < res.ResultCount && i < len(ids); i++ {
			doc := &schema.Document{
				ID:       ids[i],
				Metadata: map[string]interface{}{schema.MetadataKeyScore: res.Scores[i]},
			}
			if i < len(caseIDs) {
				doc.Metadata[FieldCaseID] = caseIDs[i]
			}
			if i < len(documentIDs) {
				doc.Metadata[FieldDocumentID] = documentIDs[i]
			}
			results = append(results, doc)
		}
	}
	return results, nil
}

// DeleteDocument removes every chunk vector of a document.
func (s *MilvusStore) DeleteDocument(ctx context.Context, documentID string) error {
	expr, err := BuildFilterExpression(map[string]interface{}{FieldDocumentID: documentID})
	if err != nil {
		return err
	}
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("failed to delete vectors of document %s: %w", documentID, err)
	}
	return nil
}

func varcharData(col entity.Column) []string {
	if c, ok := col.(*entity.ColumnVarChar); ok {
		return c.Data()
	}
	return nil
}

// BuildFilterExpression creates a Milvus boolean expression from a map of equality filters.
// Keys are sorted so the expression is deterministic.
func BuildFilterExpression(filters map[string]interface{}) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		if !filterable[k] {
			return "", fmt.Errorf("field %q cannot be used as a filter", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conditions := make([]string, 0, len(keys))
	for _, key := range keys {
		v, ok := filters[key].(string)
		if !ok {
			return "", fmt.Errorf("filter %q must be a string", key)
		}
		conditions = append(conditions, fmt.Sprintf("%s == %s", key, strconv.Quote(v)))
	}
	return strings.Join(conditions, " and "), nil
}

// compile-time check to ensure MilvusStore implements the VectorStore interface
var _ interfaces.VectorStore = (*MilvusStore)(nil)
var _ MilvusAPI = (client.Client)(nil)
