//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gpu-notebook-bridge/internal/domain"
)

func TestAssistantAskKeepsHistory(t *testing.T) {
	ctx := context.Background()
	ai := &wordAI{}
	uc := NewAssistantUseCase(ai, staticScripts{}, "test", 0, nil)

	if _, err := uc.Ask(ctx, "first"); err != nil {
		t.Fatal(err)
	}
	reply, err := uc.Ask(ctx, "second")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "re: second" {
		t.Errorf("unexpected reply %q", reply)
	}
	if len(ai.lastMsgs) != 3 || ai.lastMsgs[0].Content != "first" || ai.lastMsgs[1].Role != "assistant" {
		t.Errorf("history not sent: %+v", ai.lastMsgs)
	}

	uc.Reset()
	_, _ = uc.Ask(ctx, "third")
	if len(ai.lastMsgs) != 1 {
		t.Errorf("reset did not clear history: %+v", ai.lastMsgs)
	}
}

func TestAssistantAskTrimsOldestTurns(t *testing.T) {
	ctx := context.Background()
	ai := &wordAI{}
	uc := NewAssistantUseCase(ai, staticScripts{}, "test", 3, nil)

	for _, m := range []string{"a", "b", "c"} {
		if _, err := uc.Ask(ctx, m); err != nil {
			t.Fatal(err)
		}
	}
	if len(ai.lastMsgs) != 3 {
		t.Fatalf("expected prompt trimmed to 3 messages, got %d", len(ai.lastMsgs))
	}
	if last := ai.lastMsgs[len(ai.lastMsgs)-1]; last.Content != "c" {
		t.Errorf("newest message dropped: %+v", last)
	}
}

func TestAssistantAnalyzeAndOptimize(t *testing.T) {
	ctx := context.Background()

	t.Run("analyze sends the code without history", func(t *testing.T) {
		ai := &wordAI{}
		uc := NewAssistantUseCase(ai, staticScripts{}, "test", 0, nil)
		_, _ = uc.Ask(ctx, "hello")

		if _, err := uc.Analyze(ctx, "update_progress(1, 0.5)"); err != nil {
			t.Fatal(err)
		}
		if len(ai.lastMsgs) != 1 || !strings.Contains(ai.lastMsgs[0].Content, "update_progress(1, 0.5)") {
			t.Errorf("unexpected prompt %+v", ai.lastMsgs)
		}
		if _, err := uc.Analyze(ctx, " "); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("optimize needs a submitted script", func(t *testing.T) {
		uc := NewAssistantUseCase(&wordAI{}, staticScripts{}, "test", 0, nil)
		if _, err := uc.Optimize(ctx); !errors.Is(err, domain.ErrNoHistory) {
			t.Fatalf("expected ErrNoHistory, got %v", err)
		}
	})

	t.Run("optimize uses the last script", func(t *testing.T) {
		ai := &wordAI{}
		uc := NewAssistantUseCase(ai, staticScripts{code: "sleep(1)"}, "test", 0, nil)
		if _, err := uc.Optimize(ctx); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(ai.lastMsgs[0].Content, "sleep(1)") {
			t.Errorf("script missing from prompt: %q", ai.lastMsgs[0].Content)
		}
	})

	t.Run("provider errors are wrapped", func(t *testing.T) {
		ai := &wordAI{err: errors.New("quota")}
		uc := NewAssistantUseCase(ai, staticScripts{}, "test", 0, nil)
		if _, err := uc.Analyze(ctx, "x"); err == nil || !strings.Contains(err.Error(), "quota") {
			t.Errorf("expected wrapped provider error, got %v", err)
		}
	})
}
