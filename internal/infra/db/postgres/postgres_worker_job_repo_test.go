//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
)

func TestWorkerJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewWorkerJobRepo(testPool)

	t.Run("archive running then completed", func(t *testing.T) {
		cleanup(t)

		start := time.Now().UTC().Truncate(time.Microsecond)
		rec := model.NewWorkerJobRecord(model.TrainRequest{JobID: "job_a", NodeID: "colab_1", Epochs: 3, Code: "update_progress(1, 0.5)"}, start)
		if err := repo.Archive(ctx, rec); err != nil {
			t.Fatalf("archive running: %v", err)
		}

		_ = rec.UpdateProgress(1, 0.5)
		_ = rec.Complete(start.Add(2 * time.Second))
		if err := repo.Archive(ctx, rec); err != nil {
			t.Fatalf("archive completed: %v", err)
		}

		got, err := repo.FindByID(ctx, "job_a")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Status != model.JobStatusCompleted || got.CurrentEpoch != 1 {
			t.Errorf("unexpected record: %+v", got)
		}
		if got.CurrentLoss == nil || *got.CurrentLoss != 0.5 {
			t.Errorf("loss not stored: %v", got.CurrentLoss)
		}
		if got.EndTime == nil || !got.EndTime.Equal(start.Add(2*time.Second)) {
			t.Errorf("end time mismatch: %v", got.EndTime)
		}
		if got.Config.NodeID != "colab_1" || got.Config.Code == "" {
			t.Errorf("config not round-tripped: %+v", got.Config)
		}

		events, err := repo.Events(ctx, "job_a")
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 || events[0] != model.JobStatusRunning || events[1] != model.JobStatusCompleted {
			t.Errorf("unexpected events: %v", events)
		}
	})

	t.Run("failed job keeps its error", func(t *testing.T) {
		cleanup(t)
		rec := model.NewWorkerJobRecord(model.TrainRequest{JobID: "job_b", Code: "fail('x')"}, time.Now())
		_ = rec.Fail(time.Now(), errors.New("boom"))
		if err := repo.Archive(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, err := repo.FindByID(ctx, "job_b")
		if err != nil {
			t.Fatal(err)
		}
		if got.Error != "boom" || got.CurrentLoss != nil {
			t.Errorf("unexpected record: %+v", got)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
