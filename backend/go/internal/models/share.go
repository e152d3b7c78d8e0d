package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SharePermission 定义了外部收件人对分享文档的权限。
type SharePermission string

const (
	ShareView    SharePermission = "view"
	ShareComment SharePermission = "comment"
	ShareSign    SharePermission = "sign"
)

// Valid 判断权限值是否合法。
func (p SharePermission) Valid() bool {
	return p == ShareView || p == ShareComment || p == ShareSign
}

// DocumentShare 是一条文档外部分享记录，通过签名链接访问。
type DocumentShare struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	DocumentID     string          `gorm:"not null;size:36;index:idx_share_doc_email" json:"document_id"`
	Document       *Document       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CaseID         string          `gorm:"not null;size:36;index" json:"case_id"`
	SharedByID     uint            `gorm:"not null" json:"shared_by_id"`
	RecipientEmail string          `gorm:"not null;size:191;index:idx_share_doc_email" json:"recipient_email"`
	RecipientName  string          `gorm:"size:255" json:"recipient_name"`
	Permission     SharePermission `gorm:"type:varchar(16);not null" json:"permission"`
	TokenID        string          `gorm:"uniqueIndex;not null;size:36" json:"-"`
	ExpiresAt      time.Time       `gorm:"not null;index" json:"expires_at"`
	RevokedAt      *time.Time      `json:"revoked_at,omitempty"`
	AccessCount    int             `gorm:"not null;default:0" json:"access_count"`
	LastAccessedAt *time.Time      `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// BeforeCreate 为新的分享生成 ID 和 jti。
func (s *DocumentShare) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.TokenID == "" {
		s.TokenID = uuid.New().String()
	}
	return nil
}

// Active 判断分享在 now 时刻是否仍然有效。
func (s *DocumentShare) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
