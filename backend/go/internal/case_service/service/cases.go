package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CaseList 是分页的案件列表。
type CaseList struct {
	Items []models.Case `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type CreateCaseInput struct {
	Title             string   `json:"title" binding:"required,max=255"`
	ApplicationTypeID uint     `json:"application_type_id"`
	ApplicationType   string   `json:"application_type"`
	BeneficiaryName   string   `json:"beneficiary_name" binding:"max=255"`
	FieldOfExpertise  string   `json:"field_of_expertise" binding:"max=255"`
	Summary           string   `json:"summary"`
	SelectedCriteria  []string `json:"selected_criteria"`
}

type CasePatch struct {
	Title            *string            `json:"title" binding:"omitempty,min=1,max=255"`
	Status           *models.CaseStatus `json:"status"`
	BeneficiaryName  *string            `json:"beneficiary_name" binding:"omitempty,max=255"`
	FieldOfExpertise *string            `json:"field_of_expertise" binding:"omitempty,max=255"`
	Summary          *string            `json:"summary"`
	SelectedCriteria *[]string          `json:"selected_criteria"`
}

// CriterionStatus 是案件视角下的一条标准。
type CriterionStatus struct {
	models.CriteriaMapping
	Selected      bool `json:"selected"`
	DocumentCount int  `json:"document_count"`
}

func (s *Service) ListCases(ctx context.Context, userID uint, page, limit int) (*CaseList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	items, total, err := s.Store.ListCases(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if items == nil {
		items = []models.Case{}
	}
	return &CaseList{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) GetCase(ctx context.Context, userID uint, caseID string) (*models.Case, error) {
	return s.loadCase(ctx, userID, caseID)
}

// resolveApplicationType 按 ID 或代码查找申请类别，找不到时返回 400。
func (s *Service) resolveApplicationType(ctx context.Context, id uint, code string) (*models.ApplicationType, error) {
	var (
		t   *models.ApplicationType
		err error
	)
	switch {
	case id != 0:
		t, err = s.Store.GetApplicationType(ctx, id)
	case code != "":
		t, err = s.Store.GetApplicationTypeByCode(ctx, strings.ToUpper(code))
	default:
		return nil, apperr.NewValidation("必须指定申请类别")
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NewValidation("申请类别不存在")
	}
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	if !t.Active {
		return nil, apperr.NewValidation("申请类别 %s 已停用", t.Code)
	}
	return t, nil
}

// checkCriteria 校验标准 key 都属于该申请类别，返回去重后的列表。
func (s *Service) checkCriteria(ctx context.Context, typeID uint, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return []string{}, nil
	}
	valid, err := s.validCriteria(ctx, typeID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if _, ok := valid[k]; !ok {
			return nil, apperr.NewValidation("未知的标准: %s", k)
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Service) CreateCase(ctx context.Context, userID uint, in CreateCaseInput) (*models.Case, error) {
	t, err := s.resolveApplicationType(ctx, in.ApplicationTypeID, in.ApplicationType)
	if err != nil {
		return nil, err
	}
	criteria, err := s.checkCriteria(ctx, t.ID, in.SelectedCriteria)
	if err != nil {
		return nil, err
	}
	c := &models.Case{
		OwnerID:           userID,
		ApplicationTypeID: t.ID,
		Title:             strings.TrimSpace(in.Title),
		Status:            models.CaseDraft,
		BeneficiaryName:   in.BeneficiaryName,
		FieldOfExpertise:  in.FieldOfExpertise,
		Summary:           in.Summary,
		SelectedCriteria:  criteria,
		SurveyAnswers:     datatypes.JSON("{}"),
	}
	if err := s.Store.CreateCase(ctx, c); err != nil {
		return nil, apperr.FromDB(err)
	}
	c.ApplicationType = t
	return c, nil
}

// UpdateCase 部分更新案件。状态只能按 draft→in_review→ready→filed 前进一步，任何未关闭状态都可以关闭。
func (s *Service) UpdateCase(ctx context.Context, userID uint, caseID string, in CasePatch) (*models.Case, error) {
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Status != nil && *in.Status != c.Status {
		if !models.CanTransition(c.Status, *in.Status) {
			return nil, apperr.NewValidation("案件状态不能从 %s 变为 %s", c.Status, *in.Status)
		}
		updates["status"] = *in.Status
	}
	if in.BeneficiaryName != nil {
		updates["beneficiary_name"] = *in.BeneficiaryName
	}
	if in.FieldOfExpertise != nil {
		updates["field_of_expertise"] = *in.FieldOfExpertise
	}
	if in.Summary != nil {
		updates["summary"] = *in.Summary
	}
	if in.SelectedCriteria != nil {
		criteria, err := s.checkCriteria(ctx, c.ApplicationTypeID, *in.SelectedCriteria)
		if err != nil {
			return nil, err
		}
		updates["selected_criteria"] = datatypes.JSONSlice[string](criteria)
	}
	if err := s.Store.UpdateCase(ctx, caseID, updates); err != nil {
		return nil, dbErr(err, "案件")
	}
	return s.loadCase(ctx, userID, caseID)
}

// DeleteCase 软删除案件，同时删除其分享链接。
func (s *Service) DeleteCase(ctx context.Context, userID uint, caseID string) error {
	if _, err := s.loadCase(ctx, userID, caseID); err != nil {
		return err
	}
	if err := s.Store.DeleteCase(ctx, caseID); err != nil {
		return dbErr(err, "案件")
	}
	return nil
}

// SaveSurvey 保存问卷答案，answers 必须是 JSON 对象。
func (s *Service) SaveSurvey(ctx context.Context, userID uint, caseID string, answers json.RawMessage) (*models.Case, error) {
	if _, err := s.loadCase(ctx, userID, caseID); err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(answers, &obj); err != nil || obj == nil {
		return nil, apperr.NewValidation("问卷答案必须是 JSON 对象")
	}
	if err := s.Store.UpdateCase(ctx, caseID, map[string]interface{}{"survey_answers": datatypes.JSON(answers)}); err != nil {
		return nil, dbErr(err, "案件")
	}
	return s.loadCase(ctx, userID, caseID)
}

// CaseCriteria 返回案件申请类别的全部标准，标注是否已选择以及文档数量。
func (s *Service) CaseCriteria(ctx context.Context, userID uint, caseID string) ([]CriterionStatus, error) {
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	criteria, err := s.Store.ListCriteria(ctx, c.ApplicationTypeID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	counts, err := s.Store.CountDocumentsByCriterion(ctx, caseID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	out := make([]CriterionStatus, 0, len(criteria))
	for _, cm := range criteria {
		out = append(out, CriterionStatus{
			CriteriaMapping: cm,
			Selected:        c.HasCriterion(cm.CriterionKey),
			DocumentCount:   counts[cm.CriterionKey],
		})
	}
	return out, nil
}
