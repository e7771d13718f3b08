package model

import "time"

// Node is a remote worker reachable over HTTP.
type Node struct {
	ID          string
	BaseURL     string
	ConnectedAt time.Time
	Info        NodeInfo
}

// NodeInfo is the static snapshot served by GET /info.
type NodeInfo struct {
	GPU            string `json:"gpu"`
	CUDAAvailable  bool   `json:"cuda_available"`
	RuntimeVersion string `json:"torch_version"`
	Interpreter    string `json:"python_version"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string
	Timestamp time.Time
}

type CPUStats struct {
	Count int     `json:"count"`
	Usage float64 `json:"usage"`
}

type MemoryStats struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Percent float64 `json:"percent"`
}

type DiskStats struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// GPUStats describes one accelerator device. Utilization is 0 when the
// driver does not report it.
type GPUStats struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	MemoryTotal uint64  `json:"memory_total"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryFree  uint64  `json:"memory_free"`
	Utilization float64 `json:"utilization"`
	Temperature float64 `json:"temperature"`
}

// ResourceSnapshot is the body of GET /resources.
type ResourceSnapshot struct {
	Timestamp time.Time
	CPU       CPUStats
	Memory    MemoryStats
	Disk      DiskStats
	GPUs      []GPUStats
}

// PrimaryGPU returns the first device, or a zero value when there is none.
func (r ResourceSnapshot) PrimaryGPU() (GPUStats, bool) {
	if len(r.GPUs) == 0 {
		return GPUStats{}, false
	}
	return r.GPUs[0], true
}
