package model

import "time"

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusError     JobStatus = "error"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// DefaultEpochs is used when a train request omits epochs.
const DefaultEpochs = 10

// Job is the controller's view of one training submission. It is created
// once at least one node accepted the task and is never refreshed from the
// workers.
type Job struct {
	ID        string
	Nodes     []Node
	Epochs    int
	StartTime time.Time
	Status    JobStatus
}

// Elapsed returns the time since submission.
func (j *Job) Elapsed(now time.Time) time.Duration {
	return now.Sub(j.StartTime)
}

// TrainRequest is the body of POST /train.
type TrainRequest struct {
	JobID      string `json:"job_id"`
	NodeID     string `json:"node_id"`
	NodeIndex  int    `json:"node_index"`
	TotalNodes int    `json:"total_nodes"`
	Epochs     int    `json:"epochs"`
	Code       string `json:"code"`
}
