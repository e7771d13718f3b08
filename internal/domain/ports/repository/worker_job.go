package repository

import (
	"context"

	"gpu-notebook-bridge/internal/domain/model"
)

// WorkerJobStore holds worker job records. Implementations must serialise
// mutations of a single record and hand out copies.
type WorkerJobStore interface {
	// Create fails with domain.ErrAlreadyExists when the id is taken.
	Create(ctx context.Context, rec *model.WorkerJobRecord) error
	Get(ctx context.Context, id string) (*model.WorkerJobRecord, error)
	List(ctx context.Context) ([]*model.WorkerJobRecord, error)
	// Update applies fn under the record's lock and returns the result.
	Update(ctx context.Context, id string, fn func(rec *model.WorkerJobRecord) error) (*model.WorkerJobRecord, error)
	Delete(ctx context.Context, id string) error
}

// JobArchive receives snapshots of records on lifecycle transitions.
type JobArchive interface {
	Archive(ctx context.Context, rec *model.WorkerJobRecord) error
}

// JobHistory answers lookups for records no longer held in memory.
type JobHistory interface {
	FindByID(ctx context.Context, id string) (*model.WorkerJobRecord, error)
}

// JobClaims reserves job ids beyond the lifetime of the in-memory table.
type JobClaims interface {
	// Claim fails with domain.ErrAlreadyExists when the id is taken.
	Claim(ctx context.Context, jobID string) (token string, err error)
	Release(ctx context.Context, jobID, token string) error
}
