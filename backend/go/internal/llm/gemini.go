package llm

import (
	"context"
	"fmt"
	"strings"

	"CaseForAI/backend/go/internal/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
// 每次请求单独构造 GenerativeModel，请求之间不共享会话状态。
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini 创建一个新的 Gemini 客户端。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client, model: model}, nil
}

// GenerateContent 向 Gemini API 发送一次性请求并返回响应。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	name := g.model
	if req.Model != "" {
		name = req.Model
	}
	m := g.client.GenerativeModel(name)
	if req.SystemInstruction != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemInstruction))
	}
	if req.Temperature > 0 {
		m.SetTemperature(req.Temperature)
	}
	if req.JSONOutput {
		m.ResponseMIMEType = "application/json"
	}

	resp, err := m.GenerateContent(ctx, toGenaiParts(req.Content)...)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	out := fromGenaiResponse(resp)
	out.ModelVersion = name
	return out, nil
}

// Close 释放底层连接。
func (g *Gemini) Close() error {
	return g.client.Close()
}

// toGenaiParts 将内部 Content 结构体转换为 GenAI Part 切片。
func toGenaiParts(content []models.Content) []genai.Part {
	var parts []genai.Part
	for _, c := range content {
		for _, p := range c.Parts {
			if p.Text != "" {
				parts = append(parts, genai.Text(p.Text))
			} else if p.InlineData != nil {
				parts = append(parts, genai.Blob{
					MIMEType: p.InlineData.MIMEType,
					Data:     p.InlineData.Data,
				})
			}
		}
	}
	return parts
}

// fromGenaiResponse 只保留第一个候选中的文本部分。
func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GenerateContentResponse {
	out := &models.GenerateContentResponse{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	out.Content = []models.Content{{
		Parts: []*models.Part{{Text: sb.String()}},
		Role:  models.SpeakerModel,
	}}
	return out
}
