package service

import (
	"context"
	"fmt"
	"strings"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"

	"github.com/xuri/excelize/v2"
)

// --- Application Types ---

type ApplicationTypeInput struct {
	Code        string `json:"code" binding:"required,max=32"`
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

type ApplicationTypePatch struct {
	Code        *string `json:"code" binding:"omitempty,min=1,max=32"`
	Name        *string `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (s *Service) ListApplicationTypes(ctx context.Context, activeOnly bool) ([]models.ApplicationType, error) {
	list, err := s.Store.ListApplicationTypes(ctx, activeOnly)
	return list, apperr.FromDB(err)
}

func (s *Service) GetApplicationType(ctx context.Context, id uint) (*models.ApplicationType, error) {
	t, err := s.Store.GetApplicationType(ctx, id)
	if err != nil {
		return nil, dbErr(err, "申请类别")
	}
	return t, nil
}

func (s *Service) CreateApplicationType(ctx context.Context, in ApplicationTypeInput) (*models.ApplicationType, error) {
	t := &models.ApplicationType{
		Code:        strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Active:      in.Active == nil || *in.Active,
	}
	if t.Code == "" || t.Name == "" {
		return nil, apperr.NewValidation("代码和名称不能为空")
	}
	if err := s.Store.CreateApplicationType(ctx, t); err != nil {
		return nil, apperr.FromDB(err)
	}
	return t, nil
}

func (s *Service) UpdateApplicationType(ctx context.Context, id uint, in ApplicationTypePatch) (*models.ApplicationType, error) {
	updates := map[string]interface{}{}
	if in.Code != nil {
		updates["code"] = strings.ToUpper(strings.TrimSpace(*in.Code))
	}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}
	if err := s.Store.UpdateApplicationType(ctx, id, updates); err != nil {
		return nil, dbErr(err, "申请类别")
	}
	return s.GetApplicationType(ctx, id)
}

// DeleteApplicationType 删除申请类别，仍被案件引用时返回 409。
func (s *Service) DeleteApplicationType(ctx context.Context, id uint) error {
	if _, err := s.GetApplicationType(ctx, id); err != nil {
		return err
	}
	n, err := s.Store.CountCasesByApplicationType(ctx, id)
	if err != nil {
		return apperr.FromDB(err)
	}
	if n > 0 {
		return apperr.NewConflict("该申请类别仍被 %d 个案件引用", n)
	}
	if err := s.Store.DeleteApplicationType(ctx, id); err != nil {
		return dbErr(err, "申请类别")
	}
	return nil
}

// --- Criteria ---

type CriterionInput struct {
	CriterionKey  string `json:"criterion_key" binding:"required,max=64"`
	Title         string `json:"title" binding:"required,max=255"`
	Description   string `json:"description"`
	RegulationRef string `json:"regulation_ref" binding:"max=128"`
	EvidenceHints string `json:"evidence_hints"`
	SortOrder     int    `json:"sort_order"`
}

type CriterionPatch struct {
	CriterionKey  *string `json:"criterion_key" binding:"omitempty,min=1,max=64"`
	Title         *string `json:"title" binding:"omitempty,min=1,max=255"`
	Description   *string `json:"description"`
	RegulationRef *string `json:"regulation_ref" binding:"omitempty,max=128"`
	EvidenceHints *string `json:"evidence_hints"`
	SortOrder     *int    `json:"sort_order"`
}

// ListCriteria 列出某一申请类别的标准，类别不存在时返回 404。
func (s *Service) ListCriteria(ctx context.Context, typeID uint) ([]models.CriteriaMapping, error) {
	if _, err := s.GetApplicationType(ctx, typeID); err != nil {
		return nil, err
	}
	list, err := s.Store.ListCriteria(ctx, typeID)
	return list, apperr.FromDB(err)
}

// ListCriteriaByCode 供普通用户按类别代码查询标准。
func (s *Service) ListCriteriaByCode(ctx context.Context, code string) ([]models.CriteriaMapping, error) {
	t, err := s.Store.GetApplicationTypeByCode(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, dbErr(err, "申请类别")
	}
	list, err := s.Store.ListCriteria(ctx, t.ID)
	return list, apperr.FromDB(err)
}

func (s *Service) GetCriterion(ctx context.Context, id uint) (*models.CriteriaMapping, error) {
	c, err := s.Store.GetCriterion(ctx, id)
	if err != nil {
		return nil, dbErr(err, "标准")
	}
	return c, nil
}

func (s *Service) CreateCriterion(ctx context.Context, typeID uint, in CriterionInput) (*models.CriteriaMapping, error) {
	if _, err := s.GetApplicationType(ctx, typeID); err != nil {
		return nil, err
	}
	c := &models.CriteriaMapping{
		ApplicationTypeID: typeID,
		CriterionKey:      strings.TrimSpace(in.CriterionKey),
		Title:             strings.TrimSpace(in.Title),
		Description:       in.Description,
		RegulationRef:     in.RegulationRef,
		EvidenceHints:     in.EvidenceHints,
		SortOrder:         in.SortOrder,
	}
	if err := s.Store.CreateCriterion(ctx, c); err != nil {
		return nil, apperr.FromDB(err)
	}
	return c, nil
}

func (s *Service) UpdateCriterion(ctx context.Context, id uint, in CriterionPatch) (*models.CriteriaMapping, error) {
	updates := map[string]interface{}{}
	if in.CriterionKey != nil {
		updates["criterion_key"] = strings.TrimSpace(*in.CriterionKey)
	}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.RegulationRef != nil {
		updates["regulation_ref"] = *in.RegulationRef
	}
	if in.EvidenceHints != nil {
		updates["evidence_hints"] = *in.EvidenceHints
	}
	if in.SortOrder != nil {
		updates["sort_order"] = *in.SortOrder
	}
	if err := s.Store.UpdateCriterion(ctx, id, updates); err != nil {
		return nil, dbErr(err, "标准")
	}
	return s.GetCriterion(ctx, id)
}

func (s *Service) DeleteCriterion(ctx context.Context, id uint) error {
	if err := s.Store.DeleteCriterion(ctx, id); err != nil {
		return dbErr(err, "标准")
	}
	return nil
}

// ExportCriteria 把所有申请类别的标准导出为 xlsx。
func (s *Service) ExportCriteria(ctx context.Context) ([]byte, error) {
	types, err := s.Store.ListApplicationTypes(ctx, false)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	codes := make(map[uint]string, len(types))
	for _, t := range types {
		codes[t.ID] = t.Code
	}
	criteria, err := s.Store.ListCriteria(ctx, 0)
	if err != nil {
		return nil, apperr.FromDB(err)
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Criteria"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := []interface{}{"Application Type", "Criterion Key", "Title", "Regulation", "Description", "Evidence Hints", "Sort Order"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, c := range criteria {
		row := []interface{}{codes[c.ApplicationTypeID], c.CriterionKey, c.Title, c.RegulationRef, c.Description, c.EvidenceHints, c.SortOrder}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "C", "C", 40); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "E", "F", 60); err != nil {
		return nil, err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write criteria workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// --- Prompts ---

type PromptInput struct {
	Key          string  `json:"key" binding:"required,max=128"`
	Name         string  `json:"name" binding:"required,max=255"`
	SystemPrompt string  `json:"system_prompt"`
	UserTemplate string  `json:"user_template" binding:"required"`
	Model        string  `json:"model" binding:"max=128"`
	Temperature  float32 `json:"temperature" binding:"gte=0,lte=2"`
	Active       *bool   `json:"active"`
}

type PromptPatch struct {
	Key          *string  `json:"key" binding:"omitempty,min=1,max=128"`
	Name         *string  `json:"name" binding:"omitempty,min=1,max=255"`
	SystemPrompt *string  `json:"system_prompt"`
	UserTemplate *string  `json:"user_template" binding:"omitempty,min=1"`
	Model        *string  `json:"model" binding:"omitempty,max=128"`
	Temperature  *float32 `json:"temperature" binding:"omitempty,gte=0,lte=2"`
	Active       *bool    `json:"active"`
}

func (s *Service) ListPrompts(ctx context.Context) ([]models.AgentPrompt, error) {
	list, err := s.Store.ListPrompts(ctx)
	return list, apperr.FromDB(err)
}

func (s *Service) GetPrompt(ctx context.Context, id uint) (*models.AgentPrompt, error) {
	p, err := s.Store.GetPrompt(ctx, id)
	if err != nil {
		return nil, dbErr(err, "提示词")
	}
	return p, nil
}

func (s *Service) CreatePrompt(ctx context.Context, in PromptInput) (*models.AgentPrompt, error) {
	if _, err := parseTemplate(in.Key, in.UserTemplate); err != nil {
		return nil, err
	}
	p := &models.AgentPrompt{
		Key:          strings.TrimSpace(in.Key),
		Name:         strings.TrimSpace(in.Name),
		SystemPrompt: in.SystemPrompt,
		UserTemplate: in.UserTemplate,
		Model:        in.Model,
		Temperature:  in.Temperature,
		Version:      1,
		Active:       in.Active == nil || *in.Active,
	}
	if err := s.Store.CreatePrompt(ctx, p); err != nil {
		return nil, apperr.FromDB(err)
	}
	s.invalidatePrompt(ctx, p.Key)
	return p, nil
}

// UpdatePrompt 部分更新提示词，版本号加一并让缓存失效。
func (s *Service) UpdatePrompt(ctx context.Context, id uint, in PromptPatch) (*models.AgentPrompt, error) {
	old, err := s.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Key != nil {
		updates["key"] = strings.TrimSpace(*in.Key)
	}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.SystemPrompt != nil {
		updates["system_prompt"] = *in.SystemPrompt
	}
	if in.UserTemplate != nil {
		if _, err := parseTemplate(old.Key, *in.UserTemplate); err != nil {
			return nil, err
		}
		updates["user_template"] = *in.UserTemplate
	}
	if in.Model != nil {
		updates["model"] = *in.Model
	}
	if in.Temperature != nil {
		updates["temperature"] = *in.Temperature
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}
	if err := s.Store.UpdatePrompt(ctx, id, updates); err != nil {
		return nil, dbErr(err, "提示词")
	}
	s.invalidatePrompt(ctx, old.Key)
	updated, err := s.GetPrompt(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated.Key != old.Key {
		s.invalidatePrompt(ctx, updated.Key)
	}
	return updated, nil
}

func (s *Service) DeletePrompt(ctx context.Context, id uint) error {
	p, err := s.GetPrompt(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeletePrompt(ctx, id); err != nil {
		return dbErr(err, "提示词")
	}
	s.invalidatePrompt(ctx, p.Key)
	return nil
}

func (s *Service) invalidatePrompt(ctx context.Context, key string) {
	if s.Prompts == nil {
		return
	}
	if err := s.Prompts.Invalidate(ctx, key); err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"key": key}).Warn("failed to invalidate prompt cache")
	}
}

// --- Templates ---

type TemplateInput struct {
	Name              string              `json:"name" binding:"required,max=191"`
	Kind              models.TemplateKind `json:"kind" binding:"required"`
	ApplicationTypeID *uint               `json:"application_type_id"`
	Body              string              `json:"body" binding:"required"`
}

type TemplatePatch struct {
	Name              *string              `json:"name" binding:"omitempty,min=1,max=191"`
	Kind              *models.TemplateKind `json:"kind"`
	ApplicationTypeID *uint                `json:"application_type_id"`
	Body              *string              `json:"body" binding:"omitempty,min=1"`
}

func (s *Service) ListTemplates(ctx context.Context, kind string, typeID uint) ([]models.Template, error) {
	list, err := s.Store.ListTemplates(ctx, kind, typeID)
	return list, apperr.FromDB(err)
}

func (s *Service) GetTemplate(ctx context.Context, id uint) (*models.Template, error) {
	t, err := s.Store.GetTemplate(ctx, id)
	if err != nil {
		return nil, dbErr(err, "模板")
	}
	return t, nil
}

func (s *Service) checkTemplateRefs(ctx context.Context, kind *models.TemplateKind, typeID *uint) error {
	if kind != nil && !kind.Valid() {
		return apperr.NewValidation("未知的模板种类: %s", *kind)
	}
	if typeID != nil {
		if _, err := s.Store.GetApplicationType(ctx, *typeID); err != nil {
			if apperr.Is(dbErr(err, ""), apperr.NotFound) {
				return apperr.NewValidation("申请类别不存在")
			}
			return apperr.FromDB(err)
		}
	}
	return nil
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*models.Template, error) {
	if err := s.checkTemplateRefs(ctx, &in.Kind, in.ApplicationTypeID); err != nil {
		return nil, err
	}
	if _, err := parseTemplate(in.Name, in.Body); err != nil {
		return nil, err
	}
	t := &models.Template{
		Name:              strings.TrimSpace(in.Name),
		Kind:              in.Kind,
		ApplicationTypeID: in.ApplicationTypeID,
		Body:              in.Body,
		Version:           1,
	}
	if err := s.Store.CreateTemplate(ctx, t); err != nil {
		return nil, apperr.FromDB(err)
	}
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id uint, in TemplatePatch) (*models.Template, error) {
	if _, err := s.GetTemplate(ctx, id); err != nil {
		return nil, err
	}
	if err := s.checkTemplateRefs(ctx, in.Kind, in.ApplicationTypeID); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		updates["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Kind != nil {
		updates["kind"] = *in.Kind
	}
	if in.ApplicationTypeID != nil {
		updates["application_type_id"] = *in.ApplicationTypeID
	}
	if in.Body != nil {
		if _, err := parseTemplate("template", *in.Body); err != nil {
			return nil, err
		}
		updates["body"] = *in.Body
	}
	if err := s.Store.UpdateTemplate(ctx, id, updates); err != nil {
		return nil, dbErr(err, "模板")
	}
	return s.GetTemplate(ctx, id)
}

func (s *Service) DeleteTemplate(ctx context.Context, id uint) error {
	if err := s.Store.DeleteTemplate(ctx, id); err != nil {
		return dbErr(err, "模板")
	}
	return nil
}
