package model

import (
	"time"

	"gpu-notebook-bridge/internal/domain"
)

// WorkerJobRecord is the worker-side status record of a job. It shares the
// job id with the controller's Job but is otherwise independent of it.
type WorkerJobRecord struct {
	JobID        string
	Status       JobStatus
	Config       TrainRequest
	CurrentEpoch int
	TotalEpochs  int
	CurrentLoss  *float64
	StartTime    time.Time
	EndTime      *time.Time
	Error        string

	// ReportedElapsed is elapsed_time as measured by the owning worker. Set
	// only on records decoded from a worker reply, whose clock may differ
	// from the reader's.
	ReportedElapsed *time.Duration
}

// NewWorkerJobRecord creates a running record for req.
func NewWorkerJobRecord(req TrainRequest, now time.Time) *WorkerJobRecord {
	epochs := req.Epochs
	if epochs <= 0 {
		epochs = DefaultEpochs
	}
	return &WorkerJobRecord{
		JobID:       req.JobID,
		Status:      JobStatusRunning,
		Config:      req,
		TotalEpochs: epochs,
		StartTime:   now,
	}
}

// Elapsed is measured up to EndTime for finished jobs. A worker-reported
// value wins over local arithmetic.
func (r *WorkerJobRecord) Elapsed(now time.Time) time.Duration {
	if r.ReportedElapsed != nil {
		return *r.ReportedElapsed
	}
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return now.Sub(r.StartTime)
}

// UpdateProgress records an epoch/loss pair reported by the running script.
func (r *WorkerJobRecord) UpdateProgress(epoch int, loss float64) error {
	if r.Status != JobStatusRunning {
		return domain.ErrInvalidTransition
	}
	r.CurrentEpoch = epoch
	l := loss
	r.CurrentLoss = &l
	return nil
}

func (r *WorkerJobRecord) Complete(now time.Time) error {
	return r.finish(JobStatusCompleted, now, "")
}

func (r *WorkerJobRecord) Fail(now time.Time, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.finish(JobStatusError, now, msg)
}

func (r *WorkerJobRecord) Cancel(now time.Time) error {
	return r.finish(JobStatusCancelled, now, "")
}

func (r *WorkerJobRecord) finish(status JobStatus, now time.Time, errMsg string) error {
	if r.Status.IsTerminal() {
		return domain.ErrInvalidTransition
	}
	r.Status = status
	r.Error = errMsg
	end := now
	r.EndTime = &end
	return nil
}

// Clone returns a deep copy safe to hand out of a lock.
func (r *WorkerJobRecord) Clone() *WorkerJobRecord {
	cp := *r
	if r.CurrentLoss != nil {
		l := *r.CurrentLoss
		cp.CurrentLoss = &l
	}
	if r.EndTime != nil {
		e := *r.EndTime
		cp.EndTime = &e
	}
	if r.ReportedElapsed != nil {
		d := *r.ReportedElapsed
		cp.ReportedElapsed = &d
	}
	return &cp
}
