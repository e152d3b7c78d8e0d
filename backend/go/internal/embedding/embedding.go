package embedding

import (
	"fmt"

	"CaseForAI/backend/go/internal/config"
)

// New 根据配置中选中的提供商创建 Embedding 模型实例。
func New(cfg config.EmbeddingConfig) (Embedding, error) {
	p := cfg.Active()
	if p.Model == "" {
		return nil, fmt.Errorf("embedding model for provider %q is not configured", cfg.Provider)
	}
	switch ModelType(cfg.Provider) {
	case Gemini:
		return NewGoogleModel(p.APIKey, p.Model)
	case OpenAI:
		return NewOpenAIModel(p.APIKey, p.Model, p.BaseURL)
	case Ollama:
		return NewOllamaModel(p.Model, p.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
