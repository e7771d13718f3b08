//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
)

// ---- task queue ----

// manualQueue holds tasks until the test runs them.
type manualQueue struct {
	mu    sync.Mutex
	tasks []adapter.Task
	full  bool
}

func (q *manualQueue) Submit(task adapter.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return domain.ErrQueueFull
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *manualQueue) runAll(ctx context.Context) {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, t := range tasks {
		_ = t(ctx)
	}
}

// ---- training runner ----

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	run   func(ctx context.Context, req model.TrainRequest, progress adapter.ProgressFunc) error
}

func (r *fakeRunner) Run(ctx context.Context, req model.TrainRequest, progress adapter.ProgressFunc) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.run == nil {
		return nil
	}
	return r.run(ctx, req, progress)
}

func (r *fakeRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// ---- job sinks ----

type memArchive struct {
	mu       sync.Mutex
	statuses []model.JobStatus
	latest   map[string]*model.WorkerJobRecord
	err      error
}

func newMemArchive() *memArchive {
	return &memArchive{latest: map[string]*model.WorkerJobRecord{}}
}

func (a *memArchive) Archive(ctx context.Context, rec *model.WorkerJobRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.statuses = append(a.statuses, rec.Status)
	a.latest[rec.JobID] = rec.Clone()
	return nil
}

func (a *memArchive) FindByID(ctx context.Context, id string) (*model.WorkerJobRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.latest[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

type memClaims struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	n        int
}

func newMemClaims() *memClaims { return &memClaims{held: map[string]string{}} }

func (c *memClaims) Claim(ctx context.Context, jobID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[jobID]; ok {
		return "", domain.ErrAlreadyExists
	}
	c.n++
	tok := fmt.Sprintf("tok-%d", c.n)
	c.held[jobID] = tok
	return tok, nil
}

func (c *memClaims) Release(ctx context.Context, jobID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[jobID] == token {
		delete(c.held, jobID)
		c.released = append(c.released, jobID)
	}
	return nil
}

// ---- node client ----

type fakeNode struct {
	healthErr    error
	info         model.NodeInfo
	infoErr      error
	resources    model.ResourceSnapshot
	resourcesErr error
	trainErr     error
	jobs         map[string]*model.WorkerJobRecord
	trained      []model.TrainRequest
}

type fakeNodeClient struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode
	posts int
}

func newFakeNodeClient() *fakeNodeClient {
	return &fakeNodeClient{nodes: map[string]*fakeNode{}}
}

func (c *fakeNodeClient) add(url string) *fakeNode {
	n := &fakeNode{info: model.NodeInfo{GPU: "Tesla T4", CUDAAvailable: true}, jobs: map[string]*model.WorkerJobRecord{}}
	c.nodes[url] = n
	return n
}

var errUnreachable = errors.New("dial tcp: connection refused")

func (c *fakeNodeClient) node(url string) (*fakeNode, error) {
	n, ok := c.nodes[url]
	if !ok {
		return nil, errUnreachable
	}
	return n, nil
}

func (c *fakeNodeClient) Health(ctx context.Context, baseURL string) (model.HealthStatus, error) {
	n, err := c.node(baseURL)
	if err != nil {
		return model.HealthStatus{}, err
	}
	if n.healthErr != nil {
		return model.HealthStatus{}, n.healthErr
	}
	return model.HealthStatus{Status: "healthy"}, nil
}

func (c *fakeNodeClient) Info(ctx context.Context, baseURL string) (model.NodeInfo, error) {
	n, err := c.node(baseURL)
	if err != nil {
		return model.NodeInfo{}, err
	}
	return n.info, n.infoErr
}

func (c *fakeNodeClient) Resources(ctx context.Context, baseURL string) (model.ResourceSnapshot, error) {
	n, err := c.node(baseURL)
	if err != nil {
		return model.ResourceSnapshot{}, err
	}
	return n.resources, n.resourcesErr
}

func (c *fakeNodeClient) StartTraining(ctx context.Context, baseURL string, req model.TrainRequest) (adapter.TrainAccepted, error) {
	c.mu.Lock()
	c.posts++
	c.mu.Unlock()
	n, err := c.node(baseURL)
	if err != nil {
		return adapter.TrainAccepted{}, err
	}
	if n.trainErr != nil {
		return adapter.TrainAccepted{}, n.trainErr
	}
	n.trained = append(n.trained, req)
	n.jobs[req.JobID] = &model.WorkerJobRecord{JobID: req.JobID, Status: model.JobStatusRunning, Config: req, TotalEpochs: req.Epochs}
	return adapter.TrainAccepted{Status: "started", JobID: req.JobID}, nil
}

func (c *fakeNodeClient) JobStatus(ctx context.Context, baseURL, jobID string) (*model.WorkerJobRecord, error) {
	n, err := c.node(baseURL)
	if err != nil {
		return nil, err
	}
	rec, ok := n.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (c *fakeNodeClient) CancelJob(ctx context.Context, baseURL, jobID string) (*model.WorkerJobRecord, error) {
	n, err := c.node(baseURL)
	if err != nil {
		return nil, err
	}
	rec, ok := n.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.Status = model.JobStatusCancelled
	return rec.Clone(), nil
}

// ---- ids ----

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s_%03d", prefix, s.n)
}

// ---- ai ----

// wordAI counts one token per message and echoes the last message.
type wordAI struct {
	mu       sync.Mutex
	lastMsgs []adapter.Message
	err      error
}

func (w *wordAI) ListModels(ctx context.Context) ([]string, error) { return []string{"test"}, nil }
func (w *wordAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}
func (w *wordAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return len(messages), nil
}
func (w *wordAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.lastMsgs = append([]adapter.Message(nil), messages...)
	return "re: " + messages[len(messages)-1].Content, nil
}
func (w *wordAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	r, err := w.Chat(ctx, model, messages)
	return r, adapter.Usage{}, err
}

type staticScripts struct{ code string }

func (s staticScripts) LastScript() (string, bool) { return s.code, s.code != "" }
