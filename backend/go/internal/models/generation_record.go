package models

import "time"

// GenerationRecord 代表一次持久化的 AI 生成审计记录，写入 MongoDB。
type GenerationRecord struct {
	ID            string    `bson:"_id" json:"id"`                        // 记录唯一ID (UUID)
	CaseID        string    `bson:"case_id" json:"case_id"`               // 所属案件
	UserID        uint      `bson:"user_id" json:"user_id"`               // 发起请求的用户
	Operation     string    `bson:"operation" json:"operation"`           // "resume_extract" / "draft"
	PromptKey     string    `bson:"prompt_key" json:"prompt_key"`         // 使用的提示词
	PromptVersion int       `bson:"prompt_version" json:"prompt_version"` // 提示词版本
	TemplateID    uint      `bson:"template_id,omitempty" json:"template_id,omitempty"`
	Model         string    `bson:"model" json:"model"`
	DocumentID    string    `bson:"document_id,omitempty" json:"document_id,omitempty"` // 生成的草稿
	EvidenceCount int       `bson:"evidence_count" json:"evidence_count"`
	DurationMS    int64     `bson:"duration_ms" json:"duration_ms"`
	Error         string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}
