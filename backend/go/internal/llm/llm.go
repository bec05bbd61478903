package llm

import (
	"context"
	"fmt"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/internal/models"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
// 实现必须是无状态的：同一个客户端会被所有档案的对话并发使用。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateContentRequest) (*models.GenerateContentResponse, error)
}

// Closer 由持有底层连接的客户端实现。
type Closer interface {
	Close() error
}

// NewLLM 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewLLM(ctx context.Context, cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini provider requires an API key")
		}
		return NewGemini(ctx, cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL, cfg.TimeoutDuration())
	case "openai":
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
