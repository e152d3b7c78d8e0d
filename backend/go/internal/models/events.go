package models

import "time"

// 案件事件类型
const (
	EventDocumentUploaded  = "document.uploaded"
	EventDocumentIndexed   = "document.indexed"
	EventDocumentFailed    = "document.failed"
	EventDraftGenerated    = "draft.generated"
	EventPackageCreated    = "package.created"
	EventShareAccessed     = "share.accessed"
	EventSignatureUpdated  = "signature.updated"
	EventSignatureComplete = "signature.completed"
)

// IngestMessage 是 document.ingest 主题上的消息，通知 worker 对文档进行向量化。
type IngestMessage struct {
	DocumentID string    `json:"document_id"`
	CaseID     string    `json:"case_id"`
	OwnerID    uint      `json:"owner_id"`
	Reindex    bool      `json:"reindex"`
	TraceID    string    `json:"trace_id,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
}

// CaseEvent 是 case.event 主题上的消息，会被推送给案件所有者的 websocket 连接。
type CaseEvent struct {
	Type       string                 `json:"type"`
	CaseID     string                 `json:"case_id"`
	UserID     uint                   `json:"user_id"`
	DocumentID string                 `json:"document_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	At         time.Time              `json:"at"`
}
