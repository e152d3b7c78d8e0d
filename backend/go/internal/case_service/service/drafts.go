package service

import (
	"context"
	"errors"
	"strings"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// draftEvidenceLimit 是起草时检索的最大分块数。
const draftEvidenceLimit = 8

const (
	defaultSearchTopK = 5
	maxSearchTopK     = 20
)

type SearchInput struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k" binding:"gte=0"`
}

// SearchHit 是一条检索命中的分块。
type SearchHit struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	PageLabel  string  `json:"page_label,omitempty"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

type DraftInput struct {
	PromptKey    string `json:"prompt_key" binding:"max=128"`
	TemplateID   uint   `json:"template_id"`
	CriterionKey string `json:"criterion_key" binding:"max=64"`
	Instructions string `json:"instructions" binding:"max=4000"`
	Title        string `json:"title" binding:"max=255"`
}

// Evidence 是渲染提示词时可用的一条证据。
type Evidence struct {
	DocumentID string
	FileName   string
	PageLabel  string
	Text       string
}

// draftData 是起草模板的渲染数据。
type draftData struct {
	Case         *models.Case
	Profile      models.CaseProfile
	Criterion    *models.CriteriaMapping
	Evidence     []Evidence
	Instructions string
}

func toHit(d *schema.Document) SearchHit {
	hit := SearchHit{
		ChunkID:    d.ID,
		DocumentID: d.MetaString(schema.MetadataKeyDocumentID),
		FileName:   d.MetaString(schema.MetadataKeyFileName),
		PageLabel:  d.MetaString(schema.MetadataKeyPageLabel),
		Text:       d.Text,
	}
	switch v := d.Metadata[schema.MetadataKeyScore].(type) {
	case float32:
		hit.Score = float64(v)
	case float64:
		hit.Score = v
	}
	return hit
}

// Search 在案件的已向量化文档中检索。
func (s *Service) Search(ctx context.Context, userID uint, caseID string, in SearchInput) ([]SearchHit, error) {
	if _, err := s.loadCase(ctx, userID, caseID); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, apperr.NewValidation("查询内容不能为空")
	}
	topK := in.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}
	docs, err := s.Retriever.Run(ctx, query, caseID, topK)
	if err != nil {
		return nil, apperr.NewUnavailable(err, "检索服务暂时不可用")
	}
	hits := make([]SearchHit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, toHit(d))
	}
	return hits, nil
}

// resolveDraftSource 返回起草使用的提示词和用户模板。
// 指定模板时，模板正文作为用户模板，系统提示词取自 draft.from_template。
func (s *Service) resolveDraftSource(ctx context.Context, c *models.Case, in DraftInput) (*models.AgentPrompt, string, *models.Template, error) {
	switch {
	case in.TemplateID != 0 && in.PromptKey != "":
		return nil, "", nil, apperr.NewValidation("prompt_key 和 template_id 只能指定一个")
	case in.TemplateID != 0:
		t, err := s.Store.GetTemplate(ctx, in.TemplateID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", nil, apperr.NewValidation("模板不存在")
		}
		if err != nil {
			return nil, "", nil, apperr.FromDB(err)
		}
		if t.ApplicationTypeID != nil && *t.ApplicationTypeID != c.ApplicationTypeID {
			return nil, "", nil, apperr.NewValidation("模板不适用于该案件的申请类别")
		}
		p, err := s.resolvePrompt(ctx, PromptDraftTemplate)
		if err != nil {
			return nil, "", nil, err
		}
		return p, t.Body, t, nil
	case in.PromptKey != "":
		p, err := s.resolvePrompt(ctx, in.PromptKey)
		if err != nil {
			return nil, "", nil, err
		}
		return p, p.UserTemplate, nil, nil
	}
	return nil, "", nil, apperr.NewValidation("必须指定 prompt_key 或 template_id")
}

// retrieveEvidence 为起草检索证据。检索失败只记录日志，起草在没有证据的情况下继续。
func (s *Service) retrieveEvidence(ctx context.Context, c *models.Case, criterion *models.CriteriaMapping, instructions string) []Evidence {
	if s.Retriever == nil {
		return nil
	}
	parts := make([]string, 0, 3)
	if criterion != nil {
		parts = append(parts, criterion.Title, criterion.EvidenceHints)
	}
	if instructions != "" {
		parts = append(parts, instructions)
	}
	if len(parts) == 0 {
		parts = append(parts, c.Title, c.FieldOfExpertise)
	}
	query := strings.TrimSpace(strings.Join(parts, " "))
	if query == "" {
		return nil
	}
	docs, err := s.Retriever.Run(ctx, query, c.ID, draftEvidenceLimit)
	if err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"case_id": c.ID}).Warn("evidence retrieval failed, drafting without evidence")
		return nil
	}
	out := make([]Evidence, 0, len(docs))
	for _, d := range docs {
		h := toHit(d)
		out = append(out, Evidence{DocumentID: h.DocumentID, FileName: h.FileName, PageLabel: h.PageLabel, Text: h.Text})
	}
	return out
}

// GenerateDraft 用提示词或模板起草文档，结果保存为 draft 文档并投递向量化。
func (s *Service) GenerateDraft(ctx context.Context, userID uint, caseID string, in DraftInput) (*models.Document, error) {
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	var criterion *models.CriteriaMapping
	if in.CriterionKey != "" {
		valid, err := s.validCriteria(ctx, c.ApplicationTypeID)
		if err != nil {
			return nil, err
		}
		cm, ok := valid[in.CriterionKey]
		if !ok {
			return nil, apperr.NewValidation("未知的标准: %s", in.CriterionKey)
		}
		criterion = &cm
	}
	prompt, userTemplate, tmpl, err := s.resolveDraftSource(ctx, c, in)
	if err != nil {
		return nil, err
	}

	evidence := s.retrieveEvidence(ctx, c, criterion, in.Instructions)
	userMsg, err := renderTemplate(prompt.Key, userTemplate, draftData{
		Case:         c,
		Profile:      c.Profile.Data(),
		Criterion:    criterion,
		Evidence:     evidence,
		Instructions: in.Instructions,
	})
	if err != nil {
		return nil, err
	}

	g := generation{operation: "draft", caseID: c.ID, userID: userID, prompt: prompt, evidence: len(evidence)}
	if tmpl != nil {
		g.templateID = tmpl.ID
	}
	text, done, err := s.generate(ctx, g, prompt.SystemPrompt, userMsg, false)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = draftTitle(prompt, tmpl, criterion)
	}
	d := &models.Document{
		ID:           uuid.New().String(),
		CaseID:       c.ID,
		OwnerID:      c.OwnerID,
		Title:        title,
		Kind:         models.DocDraft,
		CriterionKey: in.CriterionKey,
		FileName:     safeFileName(title, "md"),
		MimeType:     "text/markdown",
		Content:      text,
		Size:         int64(len(text)),
		Status:       models.DocUploaded,
	}
	if err := s.Store.CreateDocument(ctx, d); err != nil {
		done("")
		return nil, apperr.FromDB(err)
	}
	done(d.ID)
	s.enqueueIngestBestEffort(ctx, d)
	s.publishEvent(ctx, models.CaseEvent{
		Type: models.EventDraftGenerated, CaseID: c.ID, UserID: c.OwnerID, DocumentID: d.ID,
		Payload: map[string]interface{}{"title": d.Title, "evidence": len(evidence)},
	})
	return d, nil
}

func draftTitle(p *models.AgentPrompt, t *models.Template, criterion *models.CriteriaMapping) string {
	base := p.Name
	if t != nil {
		base = t.Name
	}
	if criterion != nil {
		return base + " - " + criterion.Title
	}
	return base
}
