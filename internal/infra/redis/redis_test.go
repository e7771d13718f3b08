//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
)

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	rl := NewRateLimiter(fake)
	key := ClientCommandKey("10.0.0.1", "train")

	for i := 1; i <= 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("call %d: expected allowed, got %v %v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, key, 3, time.Minute); ok {
		t.Error("fourth call should be limited")
	}
	if fake.expires[key] != time.Minute {
		t.Errorf("window not set on first hit: %v", fake.expires[key])
	}
	if key != "rate_limit:train:10.0.0.1" {
		t.Errorf("unexpected key %q", key)
	}

	fake.failOn = "incr"
	if _, err := rl.Allow(ctx, "other", 3, time.Minute); err == nil {
		t.Error("expected redis error to surface")
	}
}

func TestJobClaims(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	claims := NewJobClaims(fake, time.Hour)

	token, err := claims.Claim(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := claims.Claim(ctx, "job_1"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	// a stale token does not release someone else's claim
	_ = claims.Release(ctx, "job_1", "not-the-token")
	if _, err := claims.Claim(ctx, "job_1"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("claim released with wrong token: %v", err)
	}

	if err := claims.Release(ctx, "job_1", token); err != nil {
		t.Fatal(err)
	}
	if _, err := claims.Claim(ctx, "job_1"); err != nil {
		t.Errorf("expected claim after release, got %v", err)
	}
}

func TestJobSnapshotCache(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	cache := NewJobSnapshotCache(fake, 24*time.Hour)

	start := time.Unix(1700000000, 0).UTC()
	rec := model.NewWorkerJobRecord(model.TrainRequest{JobID: "job_1", Epochs: 3, Code: "1"}, start)
	_ = rec.UpdateProgress(1, 0.5)
	_ = rec.Complete(start.Add(time.Second))

	if err := cache.Archive(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if fake.expires["worker_job:job_1"] != 24*time.Hour {
		t.Errorf("ttl not applied")
	}

	got, err := cache.FindByID(ctx, "job_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusCompleted || got.CurrentEpoch != 1 || *got.CurrentLoss != 0.5 {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if got.EndTime == nil || !got.EndTime.Equal(start.Add(time.Second)) {
		t.Errorf("end time lost: %v", got.EndTime)
	}
	if got.Config.Code != "1" {
		t.Errorf("config lost: %+v", got.Config)
	}

	if _, err := cache.FindByID(ctx, "job_2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	fake.data["worker_job:bad"] = "{not json"
	if _, err := cache.FindByID(ctx, "bad"); err == nil {
		t.Error("expected decode error")
	}
}
