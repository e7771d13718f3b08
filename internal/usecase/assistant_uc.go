package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AssistantUseCase = (*assistantUC)(nil)

// AssistantUseCase answers questions about training code.
type AssistantUseCase interface {
	// Ask continues the session conversation.
	Ask(ctx context.Context, message string) (string, error)
	// Analyze reviews a code block. It does not touch the session history.
	Analyze(ctx context.Context, code string) (string, error)
	// Optimize asks for an optimised version of the last submitted script.
	Optimize(ctx context.Context) (string, error)
	Reset()
}

// ScriptSource yields the most recently submitted training script.
type ScriptSource interface {
	LastScript() (string, bool)
}

const (
	analyzePrompt = "Review the following training script and suggest improvements.\n\n```\n%s\n```\n\nFocus on:\n1. Efficiency\n2. Best practices\n3. Potential errors\n4. Optimisation opportunities"
	optimizePrompt = "Optimise the following training script.\n\n```\n%s\n```\n\nReturn the optimised script and explain the changes."
)

type assistantUC struct {
	ai        adapter.AIServiceAdapter
	scripts   ScriptSource
	model     string
	maxTokens int
	log       *zerolog.Logger

	mu      sync.Mutex
	history []adapter.Message
}

func NewAssistantUseCase(ai adapter.AIServiceAdapter, scripts ScriptSource, model string, maxContextTokens int, logger *zerolog.Logger) *assistantUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &assistantUC{ai: ai, scripts: scripts, model: model, maxTokens: maxContextTokens, log: logger}
}

func (a *assistantUC) Ask(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: empty message", domain.ErrInvalidArgument)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	msgs := append(append([]adapter.Message(nil), a.history...), adapter.Message{Role: "user", Content: message})
	msgs, err := a.trim(ctx, msgs)
	if err != nil {
		return "", err
	}

	reply, err := a.ai.Chat(ctx, a.model, msgs)
	if err != nil {
		return "", fmt.Errorf("assistant: %w", err)
	}
	a.history = append(msgs, adapter.Message{Role: "assistant", Content: reply})
	return reply, nil
}

// trim drops the oldest turns until the prompt fits the token budget. The
// newest message is always kept.
func (a *assistantUC) trim(ctx context.Context, msgs []adapter.Message) ([]adapter.Message, error) {
	if a.maxTokens <= 0 {
		return msgs, nil
	}
	for len(msgs) > 1 {
		n, err := a.ai.CountTokens(ctx, a.model, msgs)
		if err != nil {
			return nil, fmt.Errorf("count tokens: %w", err)
		}
		if n <= a.maxTokens {
			break
		}
		msgs = msgs[1:]
	}
	return msgs, nil
}

func (a *assistantUC) Analyze(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: nothing to analyze", domain.ErrInvalidArgument)
	}
	return a.oneShot(ctx, fmt.Sprintf(analyzePrompt, code))
}

func (a *assistantUC) Optimize(ctx context.Context) (string, error) {
	code, ok := a.scripts.LastScript()
	if !ok {
		return "", domain.ErrNoHistory
	}
	return a.oneShot(ctx, fmt.Sprintf(optimizePrompt, code))
}

func (a *assistantUC) oneShot(ctx context.Context, prompt string) (string, error) {
	reply, err := a.ai.Chat(ctx, a.model, []adapter.Message{{Role: "user", Content: prompt}})
	if err != nil {
		a.log.Warn().Err(err).Msg("assistant call failed")
		return "", fmt.Errorf("assistant: %w", err)
	}
	return reply, nil
}

func (a *assistantUC) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}
