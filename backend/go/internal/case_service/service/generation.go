package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"CaseForAI/backend/go/internal/apperr"
	"CaseForAI/backend/go/internal/llm"
	"CaseForAI/backend/go/internal/metrics"
	"CaseForAI/backend/go/internal/models"

	"gorm.io/gorm"
)

// resolvePrompt 依次从 Redis 缓存、数据库和内置默认值中查找提示词。停用或不存在的提示词返回 400。
func (s *Service) resolvePrompt(ctx context.Context, key string) (*models.AgentPrompt, error) {
	if s.Prompts != nil {
		if p, ok := s.Prompts.Get(ctx, key); ok {
			if !p.Active {
				return nil, apperr.NewValidation("提示词 %s 已停用", key)
			}
			return p, nil
		}
	}
	p, err := s.Store.GetPromptByKey(ctx, key)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if def, ok := defaultPrompt(key); ok {
			return def, nil
		}
		return nil, apperr.NewValidation("提示词 %s 不存在", key)
	case err != nil:
		return nil, apperr.FromDB(err)
	}
	if s.Prompts != nil {
		if err := s.Prompts.Set(ctx, p); err != nil {
			s.log.WithErr(err).Warn("failed to cache prompt")
		}
	}
	if !p.Active {
		return nil, apperr.NewValidation("提示词 %s 已停用", key)
	}
	return p, nil
}

// generation 描述一次模型调用，用于审计记录。
type generation struct {
	operation  string
	caseID     string
	userID     uint
	prompt     *models.AgentPrompt
	templateID uint
	evidence   int
}

// generate 调用模型并返回文本。模型失败或返回空内容时返回 503。
// 无论成功与否都会写入审计记录，审计失败只记录日志。
func (s *Service) generate(ctx context.Context, g generation, system, user string, jsonOutput bool) (string, func(docID string), error) {
	req := models.NewTextRequest(system, user)
	req.Model = g.prompt.Model
	req.Temperature = g.prompt.Temperature
	req.JSONOutput = jsonOutput

	start := time.Now()
	resp, err := s.LLM.GenerateContent(ctx, req)
	text := strings.TrimSpace(resp.Text())
	if err == nil && text == "" {
		err = llm.ErrEmptyResponse
	}
	elapsed := time.Since(start)
	metrics.ObserveLLM(g.operation, elapsed, err)

	rec := &models.GenerationRecord{
		CaseID:        g.caseID,
		UserID:        g.userID,
		Operation:     g.operation,
		PromptKey:     g.prompt.Key,
		PromptVersion: g.prompt.Version,
		TemplateID:    g.templateID,
		Model:         g.prompt.Model,
		EvidenceCount: g.evidence,
		DurationMS:    elapsed.Milliseconds(),
		CreatedAt:     s.now(),
	}
	if err != nil {
		rec.Error = err.Error()
		s.audit(ctx, rec)
		return "", nil, apperr.NewUnavailable(err, "AI 服务暂时不可用，请稍后再试")
	}
	// 调用方拿到生成的文档 ID 后再写审计记录
	return text, func(docID string) {
		rec.DocumentID = docID
		s.audit(ctx, rec)
	}, nil
}

func (s *Service) audit(ctx context.Context, rec *models.GenerationRecord) {
	if s.Generations == nil {
		return
	}
	if err := s.Generations.Record(context.WithoutCancel(ctx), rec); err != nil {
		s.log.WithErr(err).WithPayload(map[string]interface{}{"case_id": rec.CaseID, "operation": rec.Operation}).
			Warn("failed to write generation audit record")
	}
}
