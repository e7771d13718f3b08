package adapter

import (
	"context"

	"gpu-notebook-bridge/internal/domain/model"
)

// ProgressFunc is handed to a running script; it reports one epoch/loss pair.
type ProgressFunc func(epoch int, loss float64) error

// TrainingRunner executes a submitted training script. Run blocks until the
// script finishes, fails or ctx is cancelled.
type TrainingRunner interface {
	Run(ctx context.Context, req model.TrainRequest, progress ProgressFunc) error
}
