package system

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

var _ adapter.ResourceProbe = (*Probe)(nil)

const (
	gpuQuery    = "index,name,memory.total,memory.used,memory.free,utilization.gpu,temperature.gpu"
	driverQuery = "driver_version"
	mib         = 1024 * 1024
)

// CommandFunc runs an external program and returns its stdout.
type CommandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Probe reads host and accelerator statistics. GPU data comes from
// nvidia-smi; a host without it reports an empty device list.
type Probe struct {
	diskPath  string
	cpuSample time.Duration
	run       CommandFunc
	log       *zerolog.Logger
}

type Option func(*Probe)

// WithCommand replaces the nvidia-smi runner.
func WithCommand(fn CommandFunc) Option { return func(p *Probe) { p.run = fn } }

// WithCPUSample sets the CPU usage sampling window (default 1s).
func WithCPUSample(d time.Duration) Option { return func(p *Probe) { p.cpuSample = d } }

func NewProbe(diskPath string, log *zerolog.Logger, opts ...Option) *Probe {
	if diskPath == "" {
		diskPath = "/"
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	p := &Probe{diskPath: diskPath, cpuSample: time.Second, run: execCommand, log: log}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Probe) Info(ctx context.Context) (model.NodeInfo, error) {
	info := model.NodeInfo{
		GPU:            "CPU only",
		RuntimeVersion: "none",
		Interpreter:    runtime.Version(),
	}
	gpus, err := p.gpus(ctx)
	if err != nil {
		return model.NodeInfo{}, err
	}
	if len(gpus) == 0 {
		return info, nil
	}
	info.GPU = gpus[0].Name
	info.CUDAAvailable = true
	if v, err := p.driverVersion(ctx); err == nil && v != "" {
		info.RuntimeVersion = v
	}
	return info, nil
}

func (p *Probe) Resources(ctx context.Context) (model.ResourceSnapshot, error) {
	snap := model.ResourceSnapshot{Timestamp: time.Now()}

	count, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return snap, fmt.Errorf("cpu count: %w", err)
	}
	usage, err := cpu.PercentWithContext(ctx, p.cpuSample, false)
	if err != nil {
		return snap, fmt.Errorf("cpu usage: %w", err)
	}
	snap.CPU = model.CPUStats{Count: count}
	if len(usage) > 0 {
		snap.CPU.Usage = usage[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return snap, fmt.Errorf("memory: %w", err)
	}
	snap.Memory = model.MemoryStats{Total: vm.Total, Used: vm.Used, Percent: vm.UsedPercent}

	du, err := disk.UsageWithContext(ctx, p.diskPath)
	if err != nil {
		return snap, fmt.Errorf("disk %s: %w", p.diskPath, err)
	}
	snap.Disk = model.DiskStats{Total: du.Total, Used: du.Used, Free: du.Free}

	gpus, err := p.gpus(ctx)
	if err != nil {
		return snap, err
	}
	snap.GPUs = gpus
	return snap, nil
}

func (p *Probe) gpus(ctx context.Context) ([]model.GPUStats, error) {
	out, err := p.run(ctx, "nvidia-smi", "--query-gpu="+gpuQuery, "--format=csv,noheader,nounits")
	if err != nil {
		if noDriver(err) {
			p.log.Debug().Err(err).Msg("nvidia-smi unavailable, reporting no gpu")
			return []model.GPUStats{}, nil
		}
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	return ParseGPUCSV(string(out))
}

func (p *Probe) driverVersion(ctx context.Context) (string, error) {
	out, err := p.run(ctx, "nvidia-smi", "--query-gpu="+driverQuery, "--format=csv,noheader")
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line), nil
}

// noDriver reports errors meaning "no usable GPU" rather than a broken probe:
// the binary is missing or exits non-zero because no driver is loaded.
func noDriver(err error) bool {
	var exitErr *exec.ExitError
	return errors.Is(err, exec.ErrNotFound) || errors.As(err, &exitErr)
}

// ParseGPUCSV parses `nvidia-smi --format=csv,noheader,nounits` output for
// the gpuQuery columns. Memory is reported in MiB and converted to bytes.
func ParseGPUCSV(out string) ([]model.GPUStats, error) {
	gpus := []model.GPUStats{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 7 {
			return nil, fmt.Errorf("nvidia-smi: unexpected line %q", line)
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		id, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("nvidia-smi: bad index %q", fields[0])
		}
		g := model.GPUStats{
			ID:          id,
			Name:        fields[1],
			MemoryTotal: mibToBytes(fields[2]),
			MemoryUsed:  mibToBytes(fields[3]),
			MemoryFree:  mibToBytes(fields[4]),
			Utilization: optionalFloat(fields[5]),
			Temperature: optionalFloat(fields[6]),
		}
		gpus = append(gpus, g)
	}
	return gpus, nil
}

// optionalFloat maps "[N/A]" and "[Not Supported]" to 0.
func optionalFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func mibToBytes(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v * mib
}
