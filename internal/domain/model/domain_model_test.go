//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"gpu-notebook-bridge/internal/domain"
)

// --- WorkerJobRecord Tests ---

func TestNewWorkerJobRecord(t *testing.T) {
	now := time.Unix(1700000000, 0)

	t.Run("should start running with epochs from the request", func(t *testing.T) {
		rec := NewWorkerJobRecord(TrainRequest{JobID: "job_1", Epochs: 3, Code: "1"}, now)
		if rec.Status != JobStatusRunning {
			t.Errorf("expected status running, got %s", rec.Status)
		}
		if rec.TotalEpochs != 3 {
			t.Errorf("expected total epochs 3, got %d", rec.TotalEpochs)
		}
		if rec.CurrentEpoch != 0 || rec.CurrentLoss != nil {
			t.Errorf("expected zero progress, got epoch=%d loss=%v", rec.CurrentEpoch, rec.CurrentLoss)
		}
		if rec.EndTime != nil {
			t.Error("expected no end time on a running record")
		}
	})

	t.Run("should default epochs when omitted", func(t *testing.T) {
		rec := NewWorkerJobRecord(TrainRequest{JobID: "job_1", Code: "1"}, now)
		if rec.TotalEpochs != DefaultEpochs {
			t.Errorf("expected default epochs %d, got %d", DefaultEpochs, rec.TotalEpochs)
		}
	})
}

func TestWorkerJobRecordTransitions(t *testing.T) {
	start := time.Unix(1700000000, 0)
	end := start.Add(5 * time.Second)

	t.Run("progress then complete", func(t *testing.T) {
		rec := NewWorkerJobRecord(TrainRequest{JobID: "job_1", Code: "1"}, start)
		if err := rec.UpdateProgress(1, 0.5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := rec.Complete(end); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Status != JobStatusCompleted {
			t.Errorf("expected completed, got %s", rec.Status)
		}
		if rec.CurrentEpoch != 1 || rec.CurrentLoss == nil || *rec.CurrentLoss != 0.5 {
			t.Errorf("progress not kept: epoch=%d loss=%v", rec.CurrentEpoch, rec.CurrentLoss)
		}
		if rec.EndTime == nil || !rec.EndTime.Equal(end) {
			t.Errorf("expected end time %v, got %v", end, rec.EndTime)
		}
		if rec.Elapsed(end.Add(time.Hour)) != 5*time.Second {
			t.Errorf("elapsed should stop at end time, got %v", rec.Elapsed(end.Add(time.Hour)))
		}
	})

	t.Run("fail sets error and end time", func(t *testing.T) {
		rec := NewWorkerJobRecord(TrainRequest{JobID: "job_1", Code: "1"}, start)
		if err := rec.Fail(end, errors.New("boom")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Status != JobStatusError || rec.Error != "boom" {
			t.Errorf("expected error status with message, got %s %q", rec.Status, rec.Error)
		}
		if rec.EndTime == nil {
			t.Error("expected end time on failed record")
		}
	})

	t.Run("terminal states reject further transitions", func(t *testing.T) {
		rec := NewWorkerJobRecord(TrainRequest{JobID: "job_1", Code: "1"}, start)
		_ = rec.Cancel(end)
		if err := rec.Complete(end); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on complete, got %v", err)
		}
		if err := rec.UpdateProgress(2, 0.1); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition on progress, got %v", err)
		}
		if rec.Status != JobStatusCancelled {
			t.Errorf("expected cancelled, got %s", rec.Status)
		}
	})

	t.Run("clone does not share pointers", func(t *testing.T) {
		rec := NewWorkerJobRecord(TrainRequest{JobID: "job_1", Code: "1"}, start)
		_ = rec.UpdateProgress(1, 0.5)
		cp := rec.Clone()
		_ = rec.UpdateProgress(2, 0.25)
		if *cp.CurrentLoss != 0.5 || cp.CurrentEpoch != 1 {
			t.Errorf("clone changed with original: epoch=%d loss=%v", cp.CurrentEpoch, *cp.CurrentLoss)
		}
	})
}

func TestJobStatusIsTerminal(t *testing.T) {
	cases := map[JobStatus]bool{
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusError:     true,
		JobStatusCancelled: true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s: expected %v, got %v", status, want, got)
		}
	}
}
