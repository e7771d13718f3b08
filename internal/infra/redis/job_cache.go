package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/repository"
)

var (
	_ repository.JobArchive = (*JobSnapshotCache)(nil)
	_ repository.JobHistory = (*JobSnapshotCache)(nil)
)

// JobSnapshotCache keeps the latest snapshot of each worker job for ttl.
type JobSnapshotCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewJobSnapshotCache(client RedisClient, ttl time.Duration) *JobSnapshotCache {
	return &JobSnapshotCache{client: client, ttl: ttl}
}

type jobSnapshot struct {
	JobID        string             `json:"job_id"`
	Status       model.JobStatus    `json:"status"`
	Config       model.TrainRequest `json:"config"`
	CurrentEpoch int                `json:"current_epoch"`
	TotalEpochs  int                `json:"total_epochs"`
	CurrentLoss  *float64           `json:"current_loss,omitempty"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Error        string             `json:"error,omitempty"`
}

func snapshotKey(jobID string) string { return fmt.Sprintf("worker_job:%s", jobID) }

func (c *JobSnapshotCache) Archive(ctx context.Context, rec *model.WorkerJobRecord) error {
	data, err := json.Marshal(jobSnapshot{
		JobID:        rec.JobID,
		Status:       rec.Status,
		Config:       rec.Config,
		CurrentEpoch: rec.CurrentEpoch,
		TotalEpochs:  rec.TotalEpochs,
		CurrentLoss:  rec.CurrentLoss,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		Error:        rec.Error,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(rec.JobID), data, c.ttl)
}

// FindByID returns domain.ErrNotFound when no snapshot is cached.
func (c *JobSnapshotCache) FindByID(ctx context.Context, id string) (*model.WorkerJobRecord, error) {
	data, err := c.client.Get(ctx, snapshotKey(id))
	if err != nil {
		return nil, err
	}
	var s jobSnapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("decode job snapshot %s: %w", id, err)
	}
	return &model.WorkerJobRecord{
		JobID:        s.JobID,
		Status:       s.Status,
		Config:       s.Config,
		CurrentEpoch: s.CurrentEpoch,
		TotalEpochs:  s.TotalEpochs,
		CurrentLoss:  s.CurrentLoss,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Error:        s.Error,
	}, nil
}
