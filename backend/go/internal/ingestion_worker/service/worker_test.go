package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/pipeline"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memDocs struct {
	mu       sync.Mutex
	docs     map[string]*models.Document
	statuses []models.DocumentStatus
}

func (m *memDocs) GetDocument(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) UpdateDocument(_ context.Context, id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			d.Status = v.(models.DocumentStatus)
			m.statuses = append(m.statuses, d.Status)
		case "ingest_error":
			d.IngestError = v.(string)
		case "chunk_count":
			d.ChunkCount = v.(int)
		}
	}
	d.UpdatedAt = time.Now()
	return nil
}

type memObjects map[string][]byte

func (m memObjects) Get(_ context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeIndexer struct {
	chunks  int
	err     error
	sources []pipeline.Source
}

func (f *fakeIndexer) Run(_ context.Context, src pipeline.Source, progress pipeline.ProgressFunc) (int, error) {
	f.sources = append(f.sources, src)
	progress("Loaded 1 pages", 10)
	return f.chunks, f.err
}

type recordingEvents struct {
	events []models.CaseEvent
}

func (r *recordingEvents) Publish(_ context.Context, e models.CaseEvent) error {
	r.events = append(r.events, e)
	return nil
}

func newWorker(indexer *fakeIndexer) (*Worker, *memDocs, *recordingEvents) {
	docs := &memDocs{docs: map[string]*models.Document{
		"doc-pdf": {
			ID: "doc-pdf", CaseID: "case-1", OwnerID: 7, Title: "Award", Kind: models.DocEvidence,
			FileName: "award.pdf", ObjectKey: "cases/case-1/documents/doc-pdf/award.pdf", Status: models.DocUploaded,
		},
		"doc-draft": {
			ID: "doc-draft", CaseID: "case-1", OwnerID: 7, Title: "Cover letter", Kind: models.DocDraft,
			Content: "Dear officer,\n\nPlease find enclosed...", Status: models.DocUploaded,
		},
		"doc-empty": {ID: "doc-empty", CaseID: "case-1", OwnerID: 7, Title: "Empty", Kind: models.DocEvidence},
	}}
	objects := memObjects{"cases/case-1/documents/doc-pdf/award.pdf": []byte("%PDF-1.4 award")}
	events := &recordingEvents{}
	return NewWorker(docs, objects, indexer, events, 0, logger.Nop()), docs, events
}

func TestProcessIndexesUploadedFile(t *testing.T) {
	indexer := &fakeIndexer{chunks: 4}
	w, docs, events := newWorker(indexer)

	err := w.Process(context.Background(), models.IngestMessage{DocumentID: "doc-pdf", CaseID: "case-1", OwnerID: 7})
	require.NoError(t, err)

	require.Len(t, indexer.sources, 1)
	src := indexer.sources[0]
	assert.Equal(t, []byte("%PDF-1.4 award"), src.Data)
	assert.Equal(t, "award.pdf", src.FileName)
	assert.Equal(t, "7", src.OwnerID)
	assert.Empty(t, src.Text)

	d := docs.docs["doc-pdf"]
	assert.Equal(t, []models.DocumentStatus{models.DocIngesting, models.DocIndexed}, docs.statuses)
	assert.Equal(t, 4, d.ChunkCount)
	assert.Empty(t, d.IngestError)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventDocumentIndexed, events.events[0].Type)
	assert.Equal(t, uint(7), events.events[0].UserID)
	assert.Equal(t, 4, events.events[0].Payload["chunks"])
}

func TestProcessUsesDraftContent(t *testing.T) {
	indexer := &fakeIndexer{chunks: 1}
	w, _, _ := newWorker(indexer)

	require.NoError(t, w.Process(context.Background(), models.IngestMessage{DocumentID: "doc-draft", CaseID: "case-1"}))
	require.Len(t, indexer.sources, 1)
	assert.Equal(t, "Dear officer,\n\nPlease find enclosed...", indexer.sources[0].Text)
	assert.Equal(t, "Cover letter.md", indexer.sources[0].FileName)
	assert.Nil(t, indexer.sources[0].Data)
}

func TestProcessMarksFailure(t *testing.T) {
	indexer := &fakeIndexer{err: errors.New("failed to embed chunks: provider down")}
	w, docs, events := newWorker(indexer)

	err := w.Process(context.Background(), models.IngestMessage{DocumentID: "doc-pdf", CaseID: "case-1"})
	require.Error(t, err)

	d := docs.docs["doc-pdf"]
	assert.Equal(t, models.DocFailed, d.Status)
	assert.Equal(t, "failed to embed chunks: provider down", d.IngestError)
	assert.Zero(t, d.ChunkCount)
	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventDocumentFailed, events.events[0].Type)
}

func TestProcessFailsWithoutFileOrContent(t *testing.T) {
	indexer := &fakeIndexer{}
	w, docs, _ := newWorker(indexer)

	err := w.Process(context.Background(), models.IngestMessage{DocumentID: "doc-empty"})
	require.Error(t, err)
	assert.Empty(t, indexer.sources)
	assert.Equal(t, models.DocFailed, docs.docs["doc-empty"].Status)
}

func TestProcessMissingObjectFails(t *testing.T) {
	indexer := &fakeIndexer{}
	w, docs, _ := newWorker(indexer)
	docs.docs["doc-pdf"].ObjectKey = "cases/case-1/documents/doc-pdf/missing.pdf"

	err := w.Process(context.Background(), models.IngestMessage{DocumentID: "doc-pdf"})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(docs.docs["doc-pdf"].IngestError, "fetch object"))
}

func TestProcessIgnoresDeletedAndMismatchedDocuments(t *testing.T) {
	indexer := &fakeIndexer{}
	w, docs, events := newWorker(indexer)

	require.NoError(t, w.Process(context.Background(), models.IngestMessage{DocumentID: "gone"}))
	require.NoError(t, w.Process(context.Background(), models.IngestMessage{DocumentID: "doc-pdf", CaseID: "case-2"}))
	assert.Empty(t, indexer.sources)
	assert.Empty(t, docs.statuses)
	assert.Empty(t, events.events)
}

func TestProcessSkipsRedeliveredMessage(t *testing.T) {
	indexer := &fakeIndexer{chunks: 3}
	w, docs, events := newWorker(indexer)
	msg := models.IngestMessage{DocumentID: "doc-pdf", CaseID: "case-1", QueuedAt: time.Now().Add(-time.Second)}

	require.NoError(t, w.Process(context.Background(), msg))
	require.NoError(t, w.Process(context.Background(), msg))
	assert.Len(t, indexer.sources, 1)
	assert.Len(t, events.events, 1)
	assert.Equal(t, []models.DocumentStatus{models.DocIngesting, models.DocIndexed}, docs.statuses)

	// reindex 是新的一次入队，照常处理
	reindex := msg
	reindex.Reindex = true
	reindex.QueuedAt = time.Now().Add(time.Hour)
	require.NoError(t, w.Process(context.Background(), reindex))
	assert.Len(t, indexer.sources, 2)
}

func TestProcessRetriesRedeliveryWhenDocumentNotIndexed(t *testing.T) {
	indexer := &fakeIndexer{chunks: 2}
	w, docs, _ := newWorker(indexer)
	msg := models.IngestMessage{DocumentID: "doc-draft", CaseID: "case-1", QueuedAt: time.Now().Add(-time.Second)}
	require.NoError(t, w.Process(context.Background(), msg))

	// 同一消息再次到达时文档已被改回 uploaded，权威检查不通过
	require.NoError(t, docs.UpdateDocument(context.Background(), "doc-draft", map[string]interface{}{"status": models.DocUploaded}))
	require.NoError(t, w.Process(context.Background(), msg))
	assert.Len(t, indexer.sources, 2)
}

func TestHandleMessage(t *testing.T) {
	indexer := &fakeIndexer{chunks: 2}
	w, _, _ := newWorker(indexer)

	value, err := json.Marshal(models.IngestMessage{DocumentID: "doc-draft", CaseID: "case-1", TraceID: "trace-1"})
	require.NoError(t, err)
	require.NoError(t, w.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.Len(t, indexer.sources, 1)

	assert.Error(t, w.HandleMessage(context.Background(), kafka.Message{Value: []byte("{not json")}))
	assert.Error(t, w.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"case_id":"case-1"}`)}))
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "向量", truncate("向量化失败", 2))
	assert.Equal(t, "ok", truncate("ok", 2))
}
