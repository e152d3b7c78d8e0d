package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"CaseForAI/backend/go/internal/config"
	"CaseForAI/backend/go/internal/models"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// ErrEmptyResponse 表示模型没有返回任何文本。
var ErrEmptyResponse = errors.New("llm returned an empty response")

// NewClient 是一个工厂函数，根据配置中选中的提供商创建 LLM 客户端。
func NewClient(cfg config.LLMConfig) (LLM, error) {
	p := cfg.Active()
	if p.Model == "" {
		return nil, fmt.Errorf("no model configured for %s provider", cfg.Provider)
	}
	switch cfg.Provider {
	case "gemini":
		return NewGemini(context.Background(), p.Model, p.APIKey)
	case "openai":
		return NewOpenAI(p.Model, p.APIKey, p.BaseURL)
	case "ollama":
		return NewOllama(p.Model, p.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")

// ExtractJSON 从模型输出中取出 JSON 并解析到 v。
// 依次尝试：整段文本、``` 代码块、第一个 '{' 到最后一个 '}' 之间的内容。
func ExtractJSON(text string, v interface{}) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyResponse
	}
	candidates := []string{text}
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		candidates = append(candidates, text[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		if lastErr = json.Unmarshal([]byte(c), v); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("no valid JSON object in model output: %w", lastErr)
}
