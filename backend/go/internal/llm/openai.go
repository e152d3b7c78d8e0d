package llm

import (
	"context"
	"fmt"
	"time"

	"CaseForAI/backend/go/internal/models"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI 兼容 API 的 LLM 客户端。
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI 创建一个新的 OpenAI 客户端。baseURL 为空时使用官方地址。
func NewOpenAI(model, apiKey, baseURL string) (*OpenAI, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// GenerateContent 使用 Chat Completions 接口生成内容。
func (o *OpenAI) GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	return o.toGenerateContentResponse(&resp), nil
}

// toOpenAIRequest 将我们的内部请求格式转换为 OpenAI 格式。
func (o *OpenAI) toOpenAIRequest(req *models.GenerateContentRequest) openai.ChatCompletionRequest {
	var messages []openai.ChatCompletionMessage
	if req.SystemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, content := range req.Content {
		role := string(content.Role)
		if content.Role == models.SpeakerModel {
			role = openai.ChatMessageRoleAssistant
		}
		for _, part := range content.Parts {
			if part.Text == "" {
				continue
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: part.Text})
		}
	}

	out := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.JSONOutput {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

// toGenerateContentResponse 将 OpenAI 响应转换为我们的内部格式，只取第一个候选。
func (o *OpenAI) toGenerateContentResponse(resp *openai.ChatCompletionResponse) *models.GenerateContentResponse {
	out := &models.GenerateContentResponse{
		ResponseID:   resp.ID,
		ModelVersion: resp.Model,
		CreateTime:   time.Unix(resp.Created, 0).UTC(),
	}
	if len(resp.Choices) > 0 {
		out.Content = []models.Content{{
			Parts: []*models.Part{{Text: resp.Choices[0].Message.Content}},
			Role:  models.SpeakerModel,
		}}
	}
	return out
}
