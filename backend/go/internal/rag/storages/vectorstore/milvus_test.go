package vectorstore

import (
	"context"
	"testing"

	"CaseForAI/backend/go/internal/rag/schema"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMilvus struct {
	inserted   []entity.Column
	searchExpr string
	deleted    []string
	results    []client.SearchResult
}

func (f *fakeMilvus) Insert(_ context.Context, _ string, _ string, columns ...entity.Column) (entity.Column, error) {
	f.inserted = columns
	return nil, nil
}

func (f *fakeMilvus) Search(_ context.Context, _ string, _ []string, expr string, _ []string,
	_ []entity.Vector, _ string, _ entity.MetricType, _ int, _ entity.SearchParam,
	_ ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	f.searchExpr = expr
	return f.results, nil
}

func (f *fakeMilvus) Delete(_ context.Context, _ string, _ string, expr string) error {
	f.deleted = append(f.deleted, expr)
	return nil
}

func TestBuildFilterExpression(t *testing.T) {
	expr, err := BuildFilterExpression(map[string]interface{}{FieldDocumentID: "d1", FieldCaseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, `case_id == "c1" and document_id == "d1"`, expr)

	expr, err = BuildFilterExpression(map[string]interface{}{FieldCaseID: `x" or case_id != "`})
	require.NoError(t, err)
	assert.Equal(t, `case_id == "x\" or case_id != \""`, expr)

	_, err = BuildFilterExpression(map[string]interface{}{"text": "x"})
	assert.Error(t, err)
	_, err = BuildFilterExpression(map[string]interface{}{FieldCaseID: 3})
	assert.Error(t, err)
}

func TestMilvusStore_AddQueryDelete(t *testing.T) {
	fake := &fakeMilvus{}
	store, err := NewMilvusStore(fake, "case_chunks", "", logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	err = store.Add(ctx, []*schema.Document{
		{ID: "a", Embedding: []float32{1, 2}, Metadata: map[string]interface{}{FieldCaseID: "c1", FieldDocumentID: "d1", FieldOwnerID: "7"}},
		{ID: "b", Embedding: []float32{3, 4}, Metadata: map[string]interface{}{FieldCaseID: "c1", FieldDocumentID: "d1", FieldOwnerID: "7"}},
	})
	require.NoError(t, err)
	require.Len(t, fake.inserted, 5)
	assert.Equal(t, []string{"a", "b"}, fake.inserted[0].(*entity.ColumnVarChar).Data())
	assert.Equal(t, []string{"c1", "c1"}, fake.inserted[2].(*entity.ColumnVarChar).Data())

	err = store.Add(ctx, []*schema.Document{{ID: "x", Embedding: []float32{1}}, {ID: "y", Embedding: []float32{1, 2}}})
	assert.Error(t, err, "mixed dimensions")

	fake.results = []client.SearchResult{{
		ResultCount: 2,
		Scores:      []float32{0.1, 0.5},
		Fields: client.ResultSet{
			entity.NewColumnVarChar(FieldID, []string{"a", "b"}),
			entity.NewColumnVarChar(FieldCaseID, []string{"c1", "c1"}),
			entity.NewColumnVarChar(FieldDocumentID, []string{"d1", "d1"}),
		},
	}}
	docs, err := store.Query(ctx, []float32{1, 2}, 2, map[string]interface{}{FieldCaseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, `case_id == "c1"`, fake.searchExpr)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[1].ID)
	assert.Equal(t, float32(0.5), docs[1].Metadata[schema.MetadataKeyScore])
	assert.Equal(t, "d1", docs[0].Metadata[FieldDocumentID])

	require.NoError(t, store.DeleteDocument(ctx, "d1"))
	assert.Equal(t, []string{`document_id == "d1"`}, fake.deleted)
}
