package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/notify"
	"CaseForAI/backend/go/internal/rag/pipeline"
	"CaseForAI/backend/go/pkg/logger"
	"CaseForAI/backend/go/pkg/util"

	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"
)

// 写入 IngestError 的最大字符数
const maxIngestError = 1000

// DocumentStore 是 worker 用到的文档读写接口，由 case_service/store.Store 实现。
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error
}

// ObjectReader 读取上传的原始文件，由 minio.Bucket 实现。
type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Indexer 对一个文档做切块、向量化和存储，由 pipeline.IndexingPipeline 实现。
type Indexer interface {
	Run(ctx context.Context, src pipeline.Source, progress pipeline.ProgressFunc) (int, error)
}

var _ Indexer = (*pipeline.IndexingPipeline)(nil)

// Worker 消费 document.ingest 消息，把文档写入向量库并回写状态。
type Worker struct {
	docs    DocumentStore
	objects ObjectReader
	indexer Indexer
	events  notify.Publisher
	logger  *logger.Logger
	timeout time.Duration
	// 已成功处理的消息，用来识别 Kafka 重投
	done *util.SeenSet
}

// NewWorker 创建一个 Worker。timeout 限制单个文档的处理时间，<=0 时使用 5 分钟。
func NewWorker(docs DocumentStore, objects ObjectReader, indexer Indexer, events notify.Publisher, timeout time.Duration, log *logger.Logger) *Worker {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if events == nil {
		events = notify.NopPublisher{}
	}
	done, _ := util.NewSeenSet(util.SeenConfig{InitialCapacity: 10000, ErrorRate: 0.001, GrowthFactor: 2, Tightening: 0.5})
	return &Worker{docs: docs, objects: objects, indexer: indexer, events: events, logger: log, timeout: timeout, done: done}
}

// HandleMessage 是 kafka.Consumer 的消息处理函数。
func (w *Worker) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var m models.IngestMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		w.logger.WithErr(err).Error("Failed to unmarshal ingest message from Kafka")
		return err
	}
	if m.DocumentID == "" {
		return errors.New("ingest message without document_id")
	}
	return w.Process(ctx, m)
}

// Process 处理一个文档：ingesting → indexed / failed，并发布对应的案件事件。
// 文档已被删除时直接忽略。
func (w *Worker) Process(ctx context.Context, m models.IngestMessage) error {
	log := w.logger.WithPayload(map[string]interface{}{"document_id": m.DocumentID, "case_id": m.CaseID, "reindex": m.Reindex})
	if m.TraceID != "" {
		log = log.WithTrace(m.TraceID)
	}

	doc, err := w.docs.GetDocument(ctx, m.DocumentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("Received ingest message for unknown document")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if m.CaseID != "" && doc.CaseID != m.CaseID {
		log.Warn("Ingest message case does not match document, skipping")
		return nil
	}
	key := messageKey(m)
	if w.done.Contains(key) && alreadyIndexed(doc, m) {
		log.Info("Duplicate ingest message, document already indexed")
		return nil
	}

	if err := w.docs.UpdateDocument(ctx, doc.ID, map[string]interface{}{
		"status":       models.DocIngesting,
		"ingest_error": "",
	}); err != nil {
		return fmt.Errorf("mark document ingesting: %w", err)
	}

	started := time.Now()
	chunks, err := w.index(ctx, doc, log)
	metrics.ObserveIngestion(chunks, err)
	if err != nil {
		log.WithErr(err).Error("Document ingestion failed")
		if uerr := w.docs.UpdateDocument(ctx, doc.ID, map[string]interface{}{
			"status":       models.DocFailed,
			"ingest_error": truncate(err.Error(), maxIngestError),
			"chunk_count":  0,
		}); uerr != nil {
			log.WithErr(uerr).Error("Failed to mark document failed")
		}
		w.publish(ctx, log, models.CaseEvent{
			Type: models.EventDocumentFailed, CaseID: doc.CaseID, UserID: doc.OwnerID, DocumentID: doc.ID,
			Payload: map[string]interface{}{"title": doc.Title, "error": truncate(err.Error(), maxIngestError)},
		})
		return err
	}

	if err := w.docs.UpdateDocument(ctx, doc.ID, map[string]interface{}{
		"status":      models.DocIndexed,
		"chunk_count": chunks,
	}); err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	w.done.Add(key)
	log.WithPayload(map[string]interface{}{
		"document_id": doc.ID,
		"chunks":      chunks,
		"elapsed_ms":  time.Since(started).Milliseconds(),
	}).Info("Document indexed")
	w.publish(ctx, log, models.CaseEvent{
		Type: models.EventDocumentIndexed, CaseID: doc.CaseID, UserID: doc.OwnerID, DocumentID: doc.ID,
		Payload: map[string]interface{}{"title": doc.Title, "chunks": chunks},
	})
	return nil
}

// index 取出文档内容并运行向量化流水线。草稿直接使用 Content，上传的文件从对象存储读取。
func (w *Worker) index(ctx context.Context, doc *models.Document, log *logger.Logger) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	src := pipeline.Source{
		CaseID:     doc.CaseID,
		DocumentID: doc.ID,
		OwnerID:    strconv.FormatUint(uint64(doc.OwnerID), 10),
		FileName:   doc.FileName,
	}
	switch {
	case doc.Content != "" && (doc.Kind == models.DocDraft || doc.ObjectKey == ""):
		src.Text = doc.Content
		if src.FileName == "" {
			src.FileName = doc.Title + ".md"
		}
	case doc.ObjectKey != "":
		data, err := w.objects.Get(ctx, doc.ObjectKey)
		if err != nil {
			return 0, fmt.Errorf("fetch object %s: %w", doc.ObjectKey, err)
		}
		src.Data = data
	default:
		return 0, errors.New("document has neither file nor content")
	}

	return w.indexer.Run(ctx, src, func(message string, percent int) {
		log.WithPayload(map[string]interface{}{"document_id": doc.ID, "percent": percent}).Debug(message)
	})
}

func (w *Worker) publish(ctx context.Context, log *logger.Logger, event models.CaseEvent) {
	if err := w.events.Publish(ctx, event); err != nil {
		log.WithErr(err).Warn("Failed to publish case event")
	}
}

// messageKey 标识一次入队：同一文档的每次 reindex 都有新的 QueuedAt。
func messageKey(m models.IngestMessage) string {
	return m.DocumentID + "@" + strconv.FormatInt(m.QueuedAt.UnixNano(), 10)
}

// alreadyIndexed 是 SeenSet 命中后的权威检查：文档在入队之后已经完成索引。
func alreadyIndexed(doc *models.Document, m models.IngestMessage) bool {
	return doc.Status == models.DocIndexed && !m.QueuedAt.IsZero() && !doc.UpdatedAt.Before(m.QueuedAt)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
