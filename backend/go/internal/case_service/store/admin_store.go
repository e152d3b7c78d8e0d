package store

import (
	"context"

	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// --- Application Types ---

// ListApplicationTypes 列出申请类别，activeOnly 为 true 时只返回启用的类别。
func (s *Store) ListApplicationTypes(ctx context.Context, activeOnly bool) ([]models.ApplicationType, error) {
	var out []models.ApplicationType
	q := s.db(ctx).Order("code")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	return out, q.Find(&out).Error
}

// GetApplicationType 通过 ID 查找申请类别。
func (s *Store) GetApplicationType(ctx context.Context, id uint) (*models.ApplicationType, error) {
	var t models.ApplicationType
	if err := s.db(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetApplicationTypeByCode 通过代码（例如 EB1A）查找申请类别。
func (s *Store) GetApplicationTypeByCode(ctx context.Context, code string) (*models.ApplicationType, error) {
	var t models.ApplicationType
	if err := s.db(ctx).Where("code = ?", code).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateApplicationType(ctx context.Context, t *models.ApplicationType) error {
	return s.db(ctx).Omit("Criteria").Create(t).Error
}

func (s *Store) UpdateApplicationType(ctx context.Context, id uint, updates map[string]interface{}) error {
	return s.updateByID(ctx, &models.ApplicationType{}, id, updates)
}

func (s *Store) DeleteApplicationType(ctx context.Context, id uint) error {
	return s.deleteByID(ctx, &models.ApplicationType{}, id)
}

// CountCasesByApplicationType 统计引用该类别的案件数，包括已软删除的案件（外键仍然存在）。
func (s *Store) CountCasesByApplicationType(ctx context.Context, id uint) (int64, error) {
	var n int64
	err := s.db(ctx).Unscoped().Model(&models.Case{}).Where("application_type_id = ?", id).Count(&n).Error
	return n, err
}

// --- Criteria ---

// ListCriteria 按排序列出某一类别的标准，typeID 为 0 时返回全部类别。
func (s *Store) ListCriteria(ctx context.Context, typeID uint) ([]models.CriteriaMapping, error) {
	var out []models.CriteriaMapping
	q := s.db(ctx).Order("application_type_id, sort_order, id")
	if typeID != 0 {
		q = q.Where("application_type_id = ?", typeID)
	}
	return out, q.Find(&out).Error
}

func (s *Store) GetCriterion(ctx context.Context, id uint) (*models.CriteriaMapping, error) {
	var c models.CriteriaMapping
	if err := s.db(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCriterion(ctx context.Context, c *models.CriteriaMapping) error {
	return s.db(ctx).Create(c).Error
}

func (s *Store) UpdateCriterion(ctx context.Context, id uint, updates map[string]interface{}) error {
	return s.updateByID(ctx, &models.CriteriaMapping{}, id, updates)
}

func (s *Store) DeleteCriterion(ctx context.Context, id uint) error {
	return s.deleteByID(ctx, &models.CriteriaMapping{}, id)
}

// --- Prompts ---

func (s *Store) ListPrompts(ctx context.Context) ([]models.AgentPrompt, error) {
	var out []models.AgentPrompt
	return out, s.db(ctx).Order("`key`").Find(&out).Error
}

func (s *Store) GetPrompt(ctx context.Context, id uint) (*models.AgentPrompt, error) {
	var p models.AgentPrompt
	if err := s.db(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetPromptByKey(ctx context.Context, key string) (*models.AgentPrompt, error) {
	var p models.AgentPrompt
	if err := s.db(ctx).Where("`key` = ?", key).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreatePrompt(ctx context.Context, p *models.AgentPrompt) error {
	return s.db(ctx).Create(p).Error
}

// UpdatePrompt 部分更新提示词，并把版本号加一。
func (s *Store) UpdatePrompt(ctx context.Context, id uint, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	return s.updateByID(ctx, &models.AgentPrompt{}, id, updates)
}

func (s *Store) DeletePrompt(ctx context.Context, id uint) error {
	return s.deleteByID(ctx, &models.AgentPrompt{}, id)
}

// --- Templates ---

// ListTemplates 列出模板，kind 和 typeID 为空值时不过滤。
func (s *Store) ListTemplates(ctx context.Context, kind string, typeID uint) ([]models.Template, error) {
	var out []models.Template
	q := s.db(ctx).Order("name")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if typeID != 0 {
		q = q.Where("application_type_id = ?", typeID)
	}
	return out, q.Find(&out).Error
}

func (s *Store) GetTemplate(ctx context.Context, id uint) (*models.Template, error) {
	var t models.Template
	if err := s.db(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) CreateTemplate(ctx context.Context, t *models.Template) error {
	return s.db(ctx).Omit("ApplicationType").Create(t).Error
}

// UpdateTemplate 部分更新模板，并把版本号加一。
func (s *Store) UpdateTemplate(ctx context.Context, id uint, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	return s.updateByID(ctx, &models.Template{}, id, updates)
}

func (s *Store) DeleteTemplate(ctx context.Context, id uint) error {
	return s.deleteByID(ctx, &models.Template{}, id)
}
