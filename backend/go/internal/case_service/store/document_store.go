package store

import (
	"context"

	"CaseForAI/backend/go/internal/models"
)

func (s *Store) CreateDocument(ctx context.Context, d *models.Document) error {
	return s.db(ctx).Omit("Case").Create(d).Error
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	var d models.Document
	if err := s.db(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments 列出案件中的文档，criterion 非空时只返回该标准下的文档。
func (s *Store) ListDocuments(ctx context.Context, caseID, criterion string) ([]models.Document, error) {
	var out []models.Document
	q := s.db(ctx).Where("case_id = ?", caseID)
	if criterion != "" {
		q = q.Where("criterion_key = ?", criterion)
	}
	return out, q.Order("exhibit_order, created_at").Find(&out).Error
}

func (s *Store) UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return s.updateByID(ctx, &models.Document{}, id, updates)
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.deleteByID(ctx, &models.Document{}, id)
}
