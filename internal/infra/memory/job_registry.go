package memory

import (
	"context"
	"sync"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/repository"
)

var _ repository.JobRegistry = (*JobRegistry)(nil)

// JobRegistry is the controller's job table, ordered by submission.
type JobRegistry struct {
	mu    sync.RWMutex
	jobs  map[string]*model.Job
	order []string
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*model.Job)}
}

func (r *JobRegistry) Save(ctx context.Context, job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		r.order = append(r.order, job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *JobRegistry) FindByID(ctx context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *JobRegistry) List(ctx context.Context) ([]*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneJob(r.jobs[id]))
	}
	return out, nil
}

func cloneJob(j *model.Job) *model.Job {
	cp := *j
	cp.Nodes = append([]model.Node(nil), j.Nodes...)
	return &cp
}
