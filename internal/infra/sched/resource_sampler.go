package sched

import (
	"context"
	"time"

	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ResourceSource yields host snapshots; the worker's host use case fits.
type ResourceSource interface {
	Resources(ctx context.Context) (model.ResourceSnapshot, error)
}

// ResourceSampler periodically copies a host snapshot into the Prometheus
// host gauges so /metrics reflects the machine without a /resources call.
type ResourceSampler struct {
	interval time.Duration
	source   ResourceSource
	publish  func(metrics.HostSample)
	log      *zerolog.Logger
}

func NewResourceSampler(interval time.Duration, source ResourceSource, logger *zerolog.Logger) *ResourceSampler {
	l := logger.With().Str("component", "ResourceSampler").Logger()
	return &ResourceSampler{
		interval: interval,
		source:   source,
		publish:  metrics.SetHostSample,
		log:      &l,
	}
}

func (w *ResourceSampler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting resource sampler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping resource sampler")
			return ctx.Err()
		case <-ticker.C:
			w.sample(ctx)
		}
	}
}

func (w *ResourceSampler) sample(ctx context.Context) {
	snap, err := w.source.Resources(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("resource sample failed")
		}
		return
	}
	s := metrics.HostSample{
		CPUUsage:   snap.CPU.Usage,
		MemoryUsed: snap.Memory.Used,
		DiskFree:   snap.Disk.Free,
	}
	for _, g := range snap.GPUs {
		s.GPUs = append(s.GPUs, metrics.GPUSample{
			ID:          g.ID,
			MemoryUsed:  g.MemoryUsed,
			Utilization: g.Utilization,
			Temperature: g.Temperature,
		})
	}
	w.publish(s)
}
