package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"gpu-notebook-bridge/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter sends the whole conversation with every call; the assistant
// use case owns the history, so no server-side chat session is kept.
type GeminiAdapter struct {
	client *genai.Client
	model  string
	maxOut int32
}

// NewGeminiAdapter builds a client for the Gemini API. An empty baseURL uses
// the SDK default endpoint.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiAdapter{client: c, model: defaultModel, maxOut: int32(maxOut)}, nil
}

// ListModels falls back to the configured model when the listing fails part
// way, so callers always get something to choose from.
func (g *GeminiAdapter) ListModels(ctx context.Context) ([]string, error) {
	var out []string
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			break
		}
		if name := strings.TrimPrefix(m.Name, "models/"); name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 && g.model != "" {
		out = []string{g.model}
	}
	return out, nil
}

func (g *GeminiAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	name := modelOrDefault(model, g.model)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m, err := g.client.Models.Get(ctx, name, nil)
	if err != nil {
		return adapter.ModelInfo{Name: name}, nil
	}
	return adapter.ModelInfo{
		Name:        strings.TrimPrefix(m.Name, "models/"),
		Description: m.Description,
		MaxTokens:   int(m.InputTokenLimit),
		Supports:    m.SupportedActions,
	}, nil
}

// CountTokens counts system turns as user text; the Gemini API count
// endpoint takes no system instruction.
func (g *GeminiAdapter) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		contents = append(contents, genai.NewContentFromText(m.Content, geminiRole(m.Role)))
	}
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(model, g.model), contents, nil)
	if err != nil {
		return 0, fmt.Errorf("gemini count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiAdapter) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	reply, _, err := g.ChatWithUsage(ctx, model, messages)
	return reply, err
}

func (g *GeminiAdapter) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	contents, system, err := splitConversation(messages)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = g.maxOut
	}

	resp, err := g.client.Models.GenerateContent(ctx, modelOrDefault(model, g.model), contents, cfg)
	if err != nil {
		return "", adapter.Usage{}, fmt.Errorf("gemini generate: %w", err)
	}

	var u adapter.Usage
	if md := resp.UsageMetadata; md != nil {
		u.PromptTokens = int(md.PromptTokenCount)
		u.CompletionTokens = int(md.CandidatesTokenCount)
		u.TotalTokens = int(md.TotalTokenCount)
	}
	return resp.Text(), u, nil
}

// splitConversation separates system turns into a single instruction and
// requires the conversation to end with the user's turn.
func splitConversation(messages []adapter.Message) ([]*genai.Content, *genai.Content, error) {
	var (
		contents []*genai.Content
		system   []string
		lastRole string
	)
	for _, m := range messages {
		if strings.EqualFold(m.Role, "system") {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, genai.NewContentFromText(m.Content, geminiRole(m.Role)))
		lastRole = strings.ToLower(m.Role)
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("gemini: no messages")
	}
	if lastRole != "user" {
		return nil, nil, errors.New("gemini: last message must be from user")
	}
	var instruction *genai.Content
	if len(system) > 0 {
		instruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, instruction, nil
}

func geminiRole(role string) genai.Role {
	switch strings.ToLower(role) {
	case "assistant", "model":
		return genai.RoleModel
	default:
		return genai.RoleUser
	}
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
