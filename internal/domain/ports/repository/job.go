package repository

import (
	"context"

	"gpu-notebook-bridge/internal/domain/model"
)

// JobRegistry is the controller's record of submitted jobs.
type JobRegistry interface {
	Save(ctx context.Context, job *model.Job) error
	FindByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context) ([]*model.Job, error)
}
