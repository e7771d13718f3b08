package usecase

import (
	"context"
	"time"

	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
)

var _ HostUseCase = (*hostUC)(nil)

// HostUseCase reports on the machine the worker runs on. Nothing is cached:
// every call probes again.
type HostUseCase interface {
	Health(ctx context.Context) model.HealthStatus
	Info(ctx context.Context) (model.NodeInfo, error)
	Resources(ctx context.Context) (model.ResourceSnapshot, error)
}

type hostUC struct {
	probe adapter.ResourceProbe
	now   func() time.Time
}

func NewHostUseCase(probe adapter.ResourceProbe) *hostUC {
	return &hostUC{probe: probe, now: time.Now}
}

func (h *hostUC) Health(ctx context.Context) model.HealthStatus {
	return model.HealthStatus{Status: "healthy", Timestamp: h.now()}
}

func (h *hostUC) Info(ctx context.Context) (model.NodeInfo, error) {
	return h.probe.Info(ctx)
}

func (h *hostUC) Resources(ctx context.Context) (model.ResourceSnapshot, error) {
	return h.probe.Resources(ctx)
}
