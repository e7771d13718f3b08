package adapter

import (
	"context"

	"gpu-notebook-bridge/internal/domain/model"
)

// ResourceProbe inspects the host the worker runs on.
type ResourceProbe interface {
	Info(ctx context.Context) (model.NodeInfo, error)
	Resources(ctx context.Context) (model.ResourceSnapshot, error)
}
