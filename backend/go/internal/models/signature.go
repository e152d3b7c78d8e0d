package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SignatureStatus 定义了签署请求的状态。
type SignatureStatus string

const (
	SignaturePending         SignatureStatus = "pending"
	SignatureSent            SignatureStatus = "sent"
	SignaturePartiallySigned SignatureStatus = "partially_signed"
	SignatureSigned          SignatureStatus = "signed"
	SignatureDeclined        SignatureStatus = "declined"
	SignatureCanceled        SignatureStatus = "canceled"
	SignatureExpired         SignatureStatus = "expired"
)

// Open 判断请求是否仍在等待签署。
func (s SignatureStatus) Open() bool {
	return s == SignatureSent || s == SignaturePartiallySigned
}

// SignerStatus 定义了单个签署人的状态。
type SignerStatus string

const (
	SignerPending  SignerStatus = "pending"
	SignerViewed   SignerStatus = "viewed"
	SignerSigned   SignerStatus = "signed"
	SignerDeclined SignerStatus = "declined"
)

// SignatureRequest 是一次发往电子签名服务商的签署请求。
type SignatureRequest struct {
	ID                string            `gorm:"primaryKey;size:36" json:"id"`
	DocumentID        string            `gorm:"not null;size:36;index" json:"document_id"`
	Document          *Document         `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CaseID            string            `gorm:"not null;size:36;index" json:"case_id"`
	RequestedByID     uint              `gorm:"not null" json:"requested_by_id"`
	ProviderRequestID string            `gorm:"uniqueIndex;size:128" json:"provider_request_id"`
	Status            SignatureStatus   `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	Subject           string            `gorm:"not null;size:255" json:"subject"`
	Message           string            `gorm:"type:text" json:"message"`
	ReminderCount     int               `gorm:"not null;default:0" json:"reminder_count"`
	LastRemindedAt    *time.Time        `json:"last_reminded_at,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	SignedDocumentID  string            `gorm:"size:36;not null;default:''" json:"signed_document_id,omitempty"` // 完成后生成的已签署文档
	Signers           []SignatureSigner `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"signers"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// BeforeCreate 为新请求生成 UUID。
func (r *SignatureRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// SignatureSigner 是签署请求中的一个签署人。
type SignatureSigner struct {
	ID        uint         `gorm:"primaryKey" json:"id"`
	RequestID string       `gorm:"not null;size:36;index" json:"request_id"`
	Email     string       `gorm:"not null;size:191" json:"email"`
	Name      string       `gorm:"size:255" json:"name"`
	Order     int          `gorm:"column:signing_order;not null;default:1" json:"order"`
	Status    SignerStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	SignedAt  *time.Time   `json:"signed_at,omitempty"`
}

// DeriveSignatureStatus 根据签署人状态推导请求状态：
// 任一拒签为 declined，全部签署为 signed，部分签署为 partially_signed，否则为 sent。
func DeriveSignatureStatus(signers []SignatureSigner) SignatureStatus {
	if len(signers) == 0 {
		return SignatureSent
	}
	signed := 0
	for _, s := range signers {
		switch s.Status {
		case SignerDeclined:
			return SignatureDeclined
		case SignerSigned:
			signed++
		}
	}
	switch {
	case signed == len(signers):
		return SignatureSigned
	case signed > 0:
		return SignaturePartiallySigned
	}
	return SignatureSent
}
