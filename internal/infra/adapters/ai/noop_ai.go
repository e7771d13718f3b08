package ai

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"gpu-notebook-bridge/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

const NoopModel = "noop-ai-model"

// cannedReplies stand in for a real model when no provider is configured.
var cannedReplies = []string{
	"I looked at the code. Suggested improvements:\n1. Use clearer variable names\n2. Add error handling\n3. Add comments",
	"The code is efficient, but it can be optimised further:\n1. Batch the per-epoch work\n2. Remove redundant loops",
	"Good code! It could be improved with:\n1. Explicit types on configuration values\n2. A short description of each step",
}

// NoopAIAdapter answers with a random canned reply after a short delay.
type NoopAIAdapter struct {
	delay time.Duration
	pick  func(n int) int
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{delay: 100 * time.Millisecond, pick: rand.IntN}
}

func (a *NoopAIAdapter) wait(ctx context.Context) error {
	if a.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(a.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *NoopAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	return []string{NoopModel}, nil
}

func (a *NoopAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:        NoopModel,
		Description: "Canned responses for offline use",
		MaxTokens:   1024,
		Supports:    []string{"chat"},
	}, nil
}

// CountTokens approximates one token per whitespace-separated word.
func (a *NoopAIAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(strings.Fields(m.Content))
	}
	return n, nil
}

func (a *NoopAIAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := a.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (a *NoopAIAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	if err := a.wait(ctx); err != nil {
		return "", adapter.Usage{}, err
	}
	reply := cannedReplies[a.pick(len(cannedReplies))]
	in, _ := a.CountTokens(ctx, model, messages)
	out := len(strings.Fields(reply))
	return reply, adapter.Usage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out}, nil
}
