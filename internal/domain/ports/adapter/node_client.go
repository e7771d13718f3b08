package adapter

import (
	"context"

	"gpu-notebook-bridge/internal/domain/model"
)

// NodeClient speaks the worker HTTP API. Every call is a single round trip;
// timeouts are carried by ctx.
type NodeClient interface {
	Health(ctx context.Context, baseURL string) (model.HealthStatus, error)
	Info(ctx context.Context, baseURL string) (model.NodeInfo, error)
	Resources(ctx context.Context, baseURL string) (model.ResourceSnapshot, error)
	StartTraining(ctx context.Context, baseURL string, req model.TrainRequest) (TrainAccepted, error)
	JobStatus(ctx context.Context, baseURL, jobID string) (*model.WorkerJobRecord, error)
	CancelJob(ctx context.Context, baseURL, jobID string) (*model.WorkerJobRecord, error)
}

// TrainAccepted is the worker's reply to POST /train.
type TrainAccepted struct {
	Status  string
	JobID   string
	Message string
}
