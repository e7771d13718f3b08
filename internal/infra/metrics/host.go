package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(hostCPUUsage, hostMemoryUsed, hostDiskFree, gpuMemoryUsed, gpuUtilization, gpuTemperature)
}

var (
	hostCPUUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_host_cpu_usage_percent",
		Help: "CPU usage of the worker host at the last sample.",
	})
	hostMemoryUsed = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_host_memory_used_bytes",
		Help: "Memory in use on the worker host.",
	})
	hostDiskFree = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_host_disk_free_bytes",
		Help: "Free space on the sampled disk.",
	})
	gpuMemoryUsed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_gpu_memory_used_bytes",
		Help: "Accelerator memory in use per device.",
	}, []string{"gpu"})
	gpuUtilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_gpu_utilization_percent",
		Help: "Accelerator utilization per device.",
	}, []string{"gpu"})
	gpuTemperature = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_gpu_temperature_celsius",
		Help: "Accelerator temperature per device.",
	}, []string{"gpu"})
)

// HostSample is one reading of the host gauges.
type HostSample struct {
	CPUUsage   float64
	MemoryUsed uint64
	DiskFree   uint64
	GPUs       []GPUSample
}

type GPUSample struct {
	ID          int
	MemoryUsed  uint64
	Utilization float64
	Temperature float64
}

func SetHostSample(s HostSample) {
	hostCPUUsage.Set(s.CPUUsage)
	hostMemoryUsed.Set(float64(s.MemoryUsed))
	hostDiskFree.Set(float64(s.DiskFree))
	gpuMemoryUsed.Reset()
	gpuUtilization.Reset()
	gpuTemperature.Reset()
	for _, g := range s.GPUs {
		id := strconv.Itoa(g.ID)
		gpuMemoryUsed.WithLabelValues(id).Set(float64(g.MemoryUsed))
		gpuUtilization.WithLabelValues(id).Set(g.Utilization)
		gpuTemperature.WithLabelValues(id).Set(g.Temperature)
	}
}
