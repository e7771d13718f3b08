//go:build !integration

package script

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
)

type progressLog struct {
	mu     sync.Mutex
	epochs []int
	losses []float64
}

func (p *progressLog) report(epoch int, loss float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epochs = append(p.epochs, epoch)
	p.losses = append(p.losses, loss)
	return nil
}

func req(code string) model.TrainRequest {
	return model.TrainRequest{JobID: "job_1", NodeID: "colab_1", NodeIndex: 0, TotalNodes: 2, Epochs: 3, Code: code}
}

func TestRunReportsProgress(t *testing.T) {
	r := NewRunner(1000, nil)

	t.Run("single call", func(t *testing.T) {
		var p progressLog
		if err := r.Run(context.Background(), req("update_progress(1, 0.5)"), p.report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.epochs) != 1 || p.epochs[0] != 1 || p.losses[0] != 0.5 {
			t.Errorf("unexpected progress: %v %v", p.epochs, p.losses)
		}
	})

	t.Run("loop over epochs from the environment", func(t *testing.T) {
		var p progressLog
		code := "map(1..epochs, update_progress(#, 1.0 / #))"
		if err := r.Run(context.Background(), req(code), p.report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.epochs) != 3 || p.epochs[2] != 3 {
			t.Errorf("expected three epochs, got %v", p.epochs)
		}
	})

	t.Run("config is visible", func(t *testing.T) {
		var p progressLog
		code := `update_progress(config.node_index + config.total_nodes, 0)`
		if err := r.Run(context.Background(), req(code), p.report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(p.epochs) != 1 || p.epochs[0] != 2 {
			t.Errorf("expected epoch 2, got %v", p.epochs)
		}
	})

	t.Run("script without progress completes", func(t *testing.T) {
		if err := r.Run(context.Background(), req("1 + 1"), nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestRunFailures(t *testing.T) {
	r := NewRunner(1000, nil)

	t.Run("fail() surfaces its message", func(t *testing.T) {
		err := r.Run(context.Background(), req(`fail("boom")`), nil)
		if !errors.Is(err, domain.ErrExecution) {
			t.Fatalf("expected ErrExecution, got %v", err)
		}
		if !strings.Contains(err.Error(), "boom") {
			t.Errorf("message lost: %v", err)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		err := r.Run(context.Background(), req("update_progress(1,"), nil)
		if !errors.Is(err, domain.ErrExecution) {
			t.Fatalf("expected ErrExecution, got %v", err)
		}
	})

	t.Run("unknown identifier", func(t *testing.T) {
		err := r.Run(context.Background(), req("open_file('x')"), nil)
		if !errors.Is(err, domain.ErrExecution) {
			t.Fatalf("expected ErrExecution, got %v", err)
		}
	})

	t.Run("wrong argument type", func(t *testing.T) {
		err := r.Run(context.Background(), req(`update_progress("one", 0.1)`), nil)
		if !errors.Is(err, domain.ErrExecution) {
			t.Fatalf("expected ErrExecution, got %v", err)
		}
	})

	t.Run("progress callback error stops the script", func(t *testing.T) {
		stop := errors.New("record closed")
		err := r.Run(context.Background(), req("update_progress(1, 0.1)"), func(int, float64) error { return stop })
		if !errors.Is(err, stop) {
			t.Fatalf("expected callback error, got %v", err)
		}
	})

	t.Run("empty script", func(t *testing.T) {
		if err := r.Check(""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestRunNodeBudget(t *testing.T) {
	r := NewRunner(5, nil)
	code := "1 + 2 + 3 + 4 + 5 + 6 + 7 + 8 + 9"
	if err := r.Check(code); !errors.Is(err, domain.ErrExecution) {
		t.Fatalf("expected budget error, got %v", err)
	}
}

func TestRunCancellation(t *testing.T) {
	r := NewRunner(1000, nil)

	t.Run("sleep observes cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		start := time.Now()
		err := r.Run(ctx, req("sleep(10000)"), nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if time.Since(start) > 2*time.Second {
			t.Error("sleep was not interrupted")
		}
	})

	t.Run("deadline is reported", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := r.Run(ctx, req("sleep(10000)"), nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected DeadlineExceeded, got %v", err)
		}
	})

	t.Run("progress after cancel is refused", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var p progressLog
		_ = r.Run(ctx, req("update_progress(1, 0.5)"), p.report)
		if len(p.epochs) != 0 {
			t.Errorf("progress reported after cancel: %v", p.epochs)
		}
	})
}
