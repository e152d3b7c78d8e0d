package store

import (
	"context"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// ListCases 分页列出用户的案件，按更新时间倒序。
func (s *Store) ListCases(ctx context.Context, ownerID uint, offset, limit int) ([]models.Case, int64, error) {
	var (
		out   []models.Case
		total int64
	)
	q := s.db(ctx).Model(&models.Case{}).Where("owner_id = ?", ownerID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Preload("ApplicationType").Order("updated_at DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// GetCase 查找案件并预加载申请类别。已软删除的案件视为不存在。
func (s *Store) GetCase(ctx context.Context, id string) (*models.Case, error) {
	var c models.Case
	if err := s.db(ctx).Preload("ApplicationType").First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCase(ctx context.Context, c *models.Case) error {
	return s.db(ctx).Omit("ApplicationType").Create(c).Error
}

func (s *Store) UpdateCase(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.updateByID(ctx, &models.Case{}, id, updates)
}

// DeleteCase 软删除案件，并在同一事务中删除该案件的所有分享链接。
func (s *Store) DeleteCase(ctx context.Context, id string) error {
	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Case{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("case_id = ?", id).Delete(&models.DocumentShare{}).Error
	})
}

// CountDocumentsByCriterion 统计案件中每条标准下的文档数。
func (s *Store) CountDocumentsByCriterion(ctx context.Context, caseID string) (map[string]int, error) {
	var rows []struct {
		CriterionKey string
		N            int
	}
	err := s.db(ctx).Model(&models.Document{}).
		Select("criterion_key, COUNT(*) AS n").
		Where("case_id = ? AND criterion_key <> ''", caseID).
		Group("criterion_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.CriterionKey] = r.N
	}
	return out, nil
}
