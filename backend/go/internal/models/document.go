package models

import (
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DocumentKind 定义了文档的来源类型。
type DocumentKind string

const (
	DocEvidence  DocumentKind = "evidence"  // 用户上传的证据材料
	DocResume    DocumentKind = "resume"    // 用户上传的简历
	DocDraft     DocumentKind = "draft"     // AI 生成或手写的草稿，正文保存在 Content
	DocGenerated DocumentKind = "generated" // 系统生成的文件，例如签署完成的 PDF
)

// DocumentStatus 定义了文档的向量化状态。
type DocumentStatus string

const (
	DocUploaded  DocumentStatus = "uploaded"
	DocIngesting DocumentStatus = "ingesting"
	DocIndexed   DocumentStatus = "indexed"
	DocFailed    DocumentStatus = "failed"
)

// Document 是案件中的一份材料。
type Document struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	CaseID       string         `gorm:"not null;size:36;index" json:"case_id"`
	Case         *Case          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	OwnerID      uint           `gorm:"not null;index" json:"owner_id"`
	Title        string         `gorm:"not null;size:255" json:"title"`
	Kind         DocumentKind   `gorm:"type:varchar(20);not null" json:"kind"`
	CriterionKey string         `gorm:"size:64;index" json:"criterion_key"`
	FileName     string         `gorm:"size:255" json:"file_name"`
	MimeType     string         `gorm:"size:128" json:"mime_type"`
	ObjectKey    string         `gorm:"size:512" json:"object_key,omitempty"`
	Size         int64          `json:"size"`
	Content      string         `gorm:"type:longtext" json:"content,omitempty"`
	Status       DocumentStatus `gorm:"type:varchar(20);not null;default:'uploaded'" json:"status"`
	IngestError  string         `gorm:"type:text" json:"ingest_error,omitempty"`
	ChunkCount   int            `gorm:"not null;default:0" json:"chunk_count"`
	ExhibitOrder int            `gorm:"not null;default:0" json:"exhibit_order"`
	Version      int            `gorm:"not null;default:1" json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// BeforeCreate 为新文档生成 UUID。
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = DocUploaded
	}
	if d.Version == 0 {
		d.Version = 1
	}
	return nil
}

// IsPDF 判断文档是否为 PDF 文件。
func (d *Document) IsPDF() bool {
	return d.MimeType == "application/pdf"
}

// DocumentObjectKey 返回文档在对象存储中的路径 cases/<case>/documents/<doc>/<filename>。
func DocumentObjectKey(caseID, docID, fileName string) string {
	return fmt.Sprintf("cases/%s/documents/%s/%s", caseID, docID, path.Base(fileName))
}

// PackageObjectKey 返回案件打包文件的路径 cases/<case>/packages/v<N>-<token>.pdf。
// token 区分同一版本号的多次尝试，落选的文件可以直接删除。
func PackageObjectKey(caseID string, version int, token string) string {
	return fmt.Sprintf("cases/%s/packages/v%d-%s.pdf", caseID, version, token)
}
