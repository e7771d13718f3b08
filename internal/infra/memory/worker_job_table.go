package memory

import (
	"context"
	"sync"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/repository"
)

var _ repository.WorkerJobStore = (*WorkerJobTable)(nil)

// WorkerJobTable guards the id -> entry map with an RWMutex and each record
// with its own mutex, so progress writes on one job never block reads of
// another.
type WorkerJobTable struct {
	mu      sync.RWMutex
	entries map[string]*jobEntry
	order   []string
}

type jobEntry struct {
	mu  sync.Mutex
	rec *model.WorkerJobRecord
}

func NewWorkerJobTable() *WorkerJobTable {
	return &WorkerJobTable{entries: make(map[string]*jobEntry)}
}

func (t *WorkerJobTable) Create(ctx context.Context, rec *model.WorkerJobRecord) error {
	if rec == nil || rec.JobID == "" {
		return domain.ErrInvalidArgument
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[rec.JobID]; exists {
		return domain.ErrAlreadyExists
	}
	t.entries[rec.JobID] = &jobEntry{rec: rec.Clone()}
	t.order = append(t.order, rec.JobID)
	return nil
}

func (t *WorkerJobTable) Get(ctx context.Context, id string) (*model.WorkerJobRecord, error) {
	e, ok := t.entry(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

func (t *WorkerJobTable) List(ctx context.Context) ([]*model.WorkerJobRecord, error) {
	t.mu.RLock()
	entries := make([]*jobEntry, 0, len(t.order))
	for _, id := range t.order {
		entries = append(entries, t.entries[id])
	}
	t.mu.RUnlock()

	out := make([]*model.WorkerJobRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec.Clone())
		e.mu.Unlock()
	}
	return out, nil
}

func (t *WorkerJobTable) Update(ctx context.Context, id string, fn func(rec *model.WorkerJobRecord) error) (*model.WorkerJobRecord, error) {
	e, ok := t.entry(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// fn works on a scratch copy so a failed update leaves the record intact
	work := e.rec.Clone()
	if err := fn(work); err != nil {
		return e.rec.Clone(), err
	}
	e.rec = work
	return work.Clone(), nil
}

func (t *WorkerJobTable) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.entries, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (t *WorkerJobTable) entry(id string) (*jobEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}
