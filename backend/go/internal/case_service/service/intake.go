package service

import (
	"context"
	"strings"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/llm"
	"CaseForAI/backend/go/internal/models"
	"CaseForAI/backend/go/internal/rag/loaders"

	"gorm.io/datatypes"
)

// resumeMIMEs 是简历允许的类型。
var resumeMIMEs = []string{loaders.MimePDF, loaders.MimeDOCX, loaders.MimeText}

// maxResumeRunes 限制送入模型的简历长度。
const maxResumeRunes = 30000

// IntakeResult 是简历抽取的结果。
type IntakeResult struct {
	Case     *models.Case       `json:"case"`
	Profile  models.CaseProfile `json:"profile"`
	Document *models.Document   `json:"document"`
}

// ExtractResume 保存简历、抽取文本并请模型生成申请人画像。
// 建议的标准只保留属于案件申请类别的 key，画像会预填案件中为空的字段。
func (s *Service) ExtractResume(ctx context.Context, userID uint, caseID string, in UploadInput) (*IntakeResult, error) {
	c, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	if len(in.Data) > 0 && !loaders.Allowed(in.Data, resumeMIMEs) {
		return nil, apperr.NewValidation("简历只支持 pdf、docx 或 txt 文件")
	}
	pages, err := loaders.LoadFile(ctx, in.FileName, in.Data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "无法读取简历")
	}
	text := loaders.JoinText(pages)
	if text == "" {
		return nil, apperr.NewValidation("无法从简历中提取文本")
	}
	if r := []rune(text); len(r) > maxResumeRunes {
		text = string(r[:maxResumeRunes])
	}

	in.Kind = models.DocResume
	in.CriterionKey = ""
	if in.Title == "" {
		in.Title = "Resume"
	}
	doc, err := s.storeUpload(ctx, c, in)
	if err != nil {
		return nil, err
	}

	criteria, err := s.Store.ListCriteria(ctx, c.ApplicationTypeID)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	prompt, err := s.resolvePrompt(ctx, PromptResumeExtract)
	if err != nil {
		return nil, err
	}
	userMsg, err := renderTemplate(prompt.Key, prompt.UserTemplate, map[string]interface{}{
		"Case":       c,
		"Criteria":   criteria,
		"ResumeText": text,
	})
	if err != nil {
		return nil, err
	}

	out, done, err := s.generate(ctx, generation{
		operation: "resume_extract", caseID: c.ID, userID: userID, prompt: prompt,
	}, prompt.SystemPrompt, userMsg, true)
	if err != nil {
		return nil, err
	}
	done(doc.ID)

	var profile models.CaseProfile
	if err := llm.ExtractJSON(out, &profile); err != nil {
		return nil, apperr.NewUnavailable(err, "AI 返回的内容无法解析")
	}
	profile.SuggestedCriteria = filterCriteria(profile.SuggestedCriteria, criteria)
	if profile.Highlights == nil {
		profile.Highlights = []string{}
	}

	updates := map[string]interface{}{"profile": datatypes.NewJSONType(profile)}
	if strings.TrimSpace(c.BeneficiaryName) == "" && profile.Name != "" {
		updates["beneficiary_name"] = profile.Name
	}
	if strings.TrimSpace(c.FieldOfExpertise) == "" && profile.Field != "" {
		updates["field_of_expertise"] = profile.Field
	}
	if strings.TrimSpace(c.Summary) == "" && profile.Summary != "" {
		updates["summary"] = profile.Summary
	}
	if err := s.Store.UpdateCase(ctx, c.ID, updates); err != nil {
		return nil, dbErr(err, "案件")
	}
	s.enqueueIngestBestEffort(ctx, doc)

	updated, err := s.loadCase(ctx, userID, caseID)
	if err != nil {
		return nil, err
	}
	return &IntakeResult{Case: updated, Profile: profile, Document: doc}, nil
}

// filterCriteria 只保留合法且不重复的标准 key，保持模型给出的顺序。
func filterCriteria(keys []string, criteria []models.CriteriaMapping) []string {
	valid := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		valid[c.CriterionKey] = true
	}
	out := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if valid[k] && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
