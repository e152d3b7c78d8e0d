package store

import (
	"context"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateShare 在文档行锁内检查同一收件人是否已有有效分享，没有时才创建。
func (s *Store) CreateShare(ctx context.Context, share *models.DocumentShare, now time.Time) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&doc, "id = ?", share.DocumentID).Error; err != nil {
			return err
		}
		var n int64
		err := tx.Model(&models.DocumentShare{}).
			Where("document_id = ? AND recipient_email = ? AND revoked_at IS NULL AND expires_at > ?",
				share.DocumentID, share.RecipientEmail, now).
			Count(&n).Error
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.NewConflict("该收件人已有有效的分享链接")
		}
		return tx.Omit("Document").Create(share).Error
	})
}

func (s *Store) GetShare(ctx context.Context, id string) (*models.DocumentShare, error) {
	var sh models.DocumentShare
	if err := s.db(ctx).First(&sh, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) ListShares(ctx context.Context, documentID string) ([]models.DocumentShare, error) {
	var out []models.DocumentShare
	return out, s.db(ctx).Where("document_id = ?", documentID).Order("created_at DESC").Find(&out).Error
}

// RevokeShare 撤销分享，已撤销的分享保持原撤销时间。
func (s *Store) RevokeShare(ctx context.Context, id string, at time.Time) error {
	return s.db(ctx).Model(&models.DocumentShare{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
}

// RecordShareAccess 原子地增加访问计数并记录访问时间。
func (s *Store) RecordShareAccess(ctx context.Context, id string, at time.Time) error {
	return s.db(ctx).Model(&models.DocumentShare{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"access_count":     gorm.Expr("access_count + 1"),
			"last_accessed_at": at,
		}).Error
}

// ExpireShares 把所有已过期但未撤销的分享标记为撤销，返回处理的行数。
func (s *Store) ExpireShares(ctx context.Context, now time.Time) (int64, error) {
	res := s.db(ctx).Model(&models.DocumentShare{}).
		Where("revoked_at IS NULL AND expires_at <= ?", now).
		Update("revoked_at", now)
	return res.RowsAffected, res.Error
}
