package apiv1

import (
	"time"

	"gpu-notebook-bridge/internal/domain/model"
)

// Wire timestamps are float Unix seconds.

type Health struct {
	Status    string  `json:"status"`
	Timestamp float64 `json:"timestamp"`
}

type Resources struct {
	Timestamp float64           `json:"timestamp"`
	CPU       model.CPUStats    `json:"cpu"`
	Memory    model.MemoryStats `json:"memory"`
	Disk      model.DiskStats   `json:"disk"`
	GPU       []model.GPUStats  `json:"gpu"`
}

type TrainAccepted struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type JobRecord struct {
	JobID        string             `json:"job_id"`
	StartTime    float64            `json:"start_time"`
	Status       string             `json:"status"`
	Config       model.TrainRequest `json:"config"`
	CurrentEpoch int                `json:"current_epoch"`
	TotalEpochs  int                `json:"total_epochs"`
	CurrentLoss  *float64           `json:"current_loss"`
	EndTime      *float64           `json:"end_time"`
	Error        *string            `json:"error"`
	ElapsedTime  float64            `json:"elapsed_time"`
}

type JobList struct {
	Items []JobRecord `json:"items"`
}

type StatusMessage struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}

func NewHealth(h model.HealthStatus) Health {
	return Health{Status: h.Status, Timestamp: unixSeconds(h.Timestamp)}
}

func (h Health) Model() model.HealthStatus {
	return model.HealthStatus{Status: h.Status, Timestamp: fromUnixSeconds(h.Timestamp)}
}

func NewResources(s model.ResourceSnapshot) Resources {
	gpus := s.GPUs
	if gpus == nil {
		gpus = []model.GPUStats{}
	}
	return Resources{
		Timestamp: unixSeconds(s.Timestamp),
		CPU:       s.CPU,
		Memory:    s.Memory,
		Disk:      s.Disk,
		GPU:       gpus,
	}
}

func (r Resources) Model() model.ResourceSnapshot {
	return model.ResourceSnapshot{
		Timestamp: fromUnixSeconds(r.Timestamp),
		CPU:       r.CPU,
		Memory:    r.Memory,
		Disk:      r.Disk,
		GPUs:      r.GPU,
	}
}

// NewJobRecord renders rec with elapsed_time computed at now.
func NewJobRecord(rec *model.WorkerJobRecord, now time.Time) JobRecord {
	out := JobRecord{
		JobID:        rec.JobID,
		StartTime:    unixSeconds(rec.StartTime),
		Status:       string(rec.Status),
		Config:       rec.Config,
		CurrentEpoch: rec.CurrentEpoch,
		TotalEpochs:  rec.TotalEpochs,
		ElapsedTime:  rec.Elapsed(now).Seconds(),
	}
	if rec.CurrentLoss != nil {
		loss := *rec.CurrentLoss
		out.CurrentLoss = &loss
	}
	if rec.EndTime != nil {
		end := unixSeconds(*rec.EndTime)
		out.EndTime = &end
	}
	if rec.Error != "" {
		msg := rec.Error
		out.Error = &msg
	}
	return out
}

// Model keeps the worker's elapsed_time as ReportedElapsed.
func (j JobRecord) Model() *model.WorkerJobRecord {
	elapsed := time.Duration(j.ElapsedTime * float64(time.Second))
	rec := &model.WorkerJobRecord{
		JobID:           j.JobID,
		Status:          model.JobStatus(j.Status),
		Config:          j.Config,
		CurrentEpoch:    j.CurrentEpoch,
		TotalEpochs:     j.TotalEpochs,
		StartTime:       fromUnixSeconds(j.StartTime),
		ReportedElapsed: &elapsed,
	}
	if j.CurrentLoss != nil {
		loss := *j.CurrentLoss
		rec.CurrentLoss = &loss
	}
	if j.EndTime != nil {
		end := fromUnixSeconds(*j.EndTime)
		rec.EndTime = &end
	}
	if j.Error != nil {
		rec.Error = *j.Error
	}
	return rec
}
