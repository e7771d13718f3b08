package ai

import (
	"context"
	"fmt"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
)

// maxConcurrentCalls bounds in-flight provider requests per process.
const maxConcurrentCalls = 4

// New builds the assistant adapter for cfg: a router over every provider
// with credentials, always including noop, wrapped with metrics.
func New(ctx context.Context, cfg config.AIConfig) (adapter.AIServiceAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{"noop": NewNoopAIAdapter()}
	models := map[string]string{}

	if cfg.OpenAIKey != "" {
		model := ""
		if cfg.Provider == "openai" {
			model = cfg.DefaultModel
		}
		oa, err := NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, model, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = oa
	}
	if cfg.GeminiKey != "" {
		model := "gemini-2.0-flash"
		if cfg.Provider == "gemini" {
			model = cfg.DefaultModel
		}
		ga, err := NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, model, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = ga
	}
	if cfg.DefaultModel != "" {
		models[cfg.DefaultModel] = cfg.Provider
	}
	return NewLimitedAI(NewMultiAIAdapter(cfg.Provider, providers, models), maxConcurrentCalls), nil
}
