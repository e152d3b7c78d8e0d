package store

import (
	"context"
	"time"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

func preloadSigners(db *gorm.DB) *gorm.DB {
	return db.Preload("Signers", func(db *gorm.DB) *gorm.DB {
		return db.Order("signing_order, id")
	})
}

// CreateSignatureRequest 在一个事务中创建请求及其签署人。
func (s *Store) CreateSignatureRequest(ctx context.Context, r *models.SignatureRequest) error {
	return s.db(ctx).Omit("Document").Create(r).Error
}

func (s *Store) GetSignatureRequest(ctx context.Context, id string) (*models.SignatureRequest, error) {
	var r models.SignatureRequest
	if err := preloadSigners(s.db(ctx)).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetSignatureRequestByProviderID(ctx context.Context, providerID string) (*models.SignatureRequest, error) {
	var r models.SignatureRequest
	if err := preloadSigners(s.db(ctx)).First(&r, "provider_request_id = ?", providerID).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) ListSignatureRequests(ctx context.Context, caseID string) ([]models.SignatureRequest, error) {
	var out []models.SignatureRequest
	return out, preloadSigners(s.db(ctx)).Where("case_id = ?", caseID).Order("created_at DESC").Find(&out).Error
}

func (s *Store) UpdateSignatureRequest(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.updateByID(ctx, &models.SignatureRequest{}, id, updates)
}

// ClaimSignedDocument 为请求登记已签署文档的 ID。只有第一次登记生效，
// 之后的调用返回已登记的 ID，保证重复的完成回调只生成一个文档。
func (s *Store) ClaimSignedDocument(ctx context.Context, requestID, docID string) (string, error) {
	res := s.db(ctx).Model(&models.SignatureRequest{}).
		Where("id = ? AND signed_document_id = ?", requestID, "").
		Update("signed_document_id", docID)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 1 {
		return docID, nil
	}
	var r models.SignatureRequest
	if err := s.db(ctx).Select("id", "signed_document_id").First(&r, "id = ?", requestID).Error; err != nil {
		return "", err
	}
	return r.SignedDocumentID, nil
}

func (s *Store) UpdateSigner(ctx context.Context, signerID uint, updates map[string]interface{}) error {
	return s.updateByID(ctx, &models.SignatureSigner{}, signerID, updates)
}

// ListStaleSignatureRequests 返回仍在等待签署、且自 before 之后没有提醒过的请求。
func (s *Store) ListStaleSignatureRequests(ctx context.Context, before time.Time) ([]models.SignatureRequest, error) {
	var out []models.SignatureRequest
	err := preloadSigners(s.db(ctx)).
		Where("status IN ?", []models.SignatureStatus{models.SignatureSent, models.SignaturePartiallySigned}).
		Where("COALESCE(last_reminded_at, created_at) < ?", before).
		Order("created_at").
		Find(&out).Error
	return out, err
}
