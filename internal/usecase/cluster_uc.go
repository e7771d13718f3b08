package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
	"gpu-notebook-bridge/internal/domain/ports/repository"
	"gpu-notebook-bridge/internal/infra/logging"
	"gpu-notebook-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ ClusterUseCase = (*clusterUC)(nil)

// ClusterUseCase is the controller: it connects nodes, dispatches training
// scripts and polls job status. Every remote call is synchronous and nodes
// are visited one after another in registration order.
type ClusterUseCase interface {
	Connect(ctx context.Context, rawURL string) (*model.Node, error)
	Nodes(ctx context.Context) ([]*model.Node, error)
	Status(ctx context.Context) ([]NodeReport, error)
	SubmitTraining(ctx context.Context, nodes, epochs int, code string) (*Submission, error)
	ListJobs(ctx context.Context) ([]*model.Job, error)
	JobStatus(ctx context.Context, jobID string) (*model.Job, []NodeJobReport, error)
	CancelJob(ctx context.Context, jobID string) (*model.Job, []NodeJobReport, error)
	LastScript() (string, bool)
}

// NodeReport is one node's resources or the error that prevented reading them.
type NodeReport struct {
	Node      model.Node
	Resources *model.ResourceSnapshot
	Err       error
}

// NodeSubmitResult is the outcome of one POST /train.
type NodeSubmitResult struct {
	Node     model.Node
	Accepted *adapter.TrainAccepted
	Err      error
}

// Submission summarises a SubmitTraining call. Job is nil when no node
// accepted the script.
type Submission struct {
	Job       *model.Job
	Requested int
	Available int
	Results   []NodeSubmitResult
}

// Shortage reports that fewer nodes were available than requested.
func (s *Submission) Shortage() bool { return s.Available < s.Requested }

// NodeJobReport is one node's verbatim view of a job.
type NodeJobReport struct {
	Node   model.Node
	Record *model.WorkerJobRecord
	Err    error
}

type clusterUC struct {
	nodes    repository.NodeRegistry
	jobs     repository.JobRegistry
	client   adapter.NodeClient
	ids      adapter.IDGenerator
	timeouts config.ControllerConfig
	now      func() time.Time
	log      *zerolog.Logger

	mu         sync.Mutex
	lastScript string
}

func NewClusterUseCase(
	nodes repository.NodeRegistry,
	jobs repository.JobRegistry,
	client adapter.NodeClient,
	ids adapter.IDGenerator,
	timeouts config.ControllerConfig,
	logger *zerolog.Logger,
) *clusterUC {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &clusterUC{
		nodes:    nodes,
		jobs:     jobs,
		client:   client,
		ids:      ids,
		timeouts: timeouts,
		now:      time.Now,
		log:      logger,
	}
}

// NormalizeURL trims blanks and a trailing slash and requires an http(s)
// URL with a host.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", fmt.Errorf("%w: empty url", domain.ErrInvalidArgument)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url must start with http:// or https://", domain.ErrInvalidArgument)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url has no host", domain.ErrInvalidArgument)
	}
	return s, nil
}

// call runs one remote operation under its own timeout and records it.
func call[T any](ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	v, err := fn(ctx)
	metrics.ObserveRemoteCall(op, time.Since(start), err == nil)
	return v, err
}

func (uc *clusterUC) Connect(ctx context.Context, rawURL string) (*model.Node, error) {
	defer logging.TraceDuration(uc.log, "ClusterUC.Connect")()

	base, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	if _, err := call(ctx, "health", uc.timeouts.ConnectTimeout, func(ctx context.Context) (model.HealthStatus, error) {
		return uc.client.Health(ctx, base)
	}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConnection, base, err)
	}
	info, err := call(ctx, "info", uc.timeouts.ConnectTimeout, func(ctx context.Context) (model.NodeInfo, error) {
		return uc.client.Info(ctx, base)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConnection, base, err)
	}

	node := &model.Node{
		ID:          uc.ids.NewID("colab"),
		BaseURL:     base,
		ConnectedAt: uc.now(),
		Info:        info,
	}
	if err := uc.nodes.Add(ctx, node); err != nil {
		return nil, err
	}
	if n, err := uc.nodes.Count(ctx); err == nil {
		metrics.SetNodesRegistered(n)
	}
	logging.With(logging.WithNodeID(ctx, node.ID), uc.log).Info().
		Str("url", base).Str("gpu", info.GPU).Msg("node connected")
	return node, nil
}

func (uc *clusterUC) Nodes(ctx context.Context) ([]*model.Node, error) {
	return uc.nodes.List(ctx)
}

func (uc *clusterUC) Status(ctx context.Context) ([]NodeReport, error) {
	nodes, err := uc.nodes.List(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]NodeReport, 0, len(nodes))
	for _, n := range nodes {
		snap, err := call(ctx, "resources", uc.timeouts.StatusTimeout, func(ctx context.Context) (model.ResourceSnapshot, error) {
			return uc.client.Resources(ctx, n.BaseURL)
		})
		r := NodeReport{Node: *n}
		if err != nil {
			r.Err = err
			uc.log.Warn().Err(err).Str("node_id", n.ID).Msg("resource query failed")
		} else {
			r.Resources = &snap
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (uc *clusterUC) SubmitTraining(ctx context.Context, nodes, epochs int, code string) (*Submission, error) {
	defer logging.TraceDuration(uc.log, "ClusterUC.SubmitTraining")()

	if nodes < 1 {
		return nil, fmt.Errorf("%w: nodes must be at least 1", domain.ErrInvalidArgument)
	}
	if epochs < 1 {
		return nil, fmt.Errorf("%w: epochs must be at least 1", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: training script is empty", domain.ErrInvalidArgument)
	}

	registered, err := uc.nodes.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(registered) == 0 {
		return nil, domain.ErrNoNodes
	}

	uc.mu.Lock()
	uc.lastScript = code
	uc.mu.Unlock()

	selected := registered
	if len(selected) > nodes {
		selected = selected[:nodes]
	}
	sub := &Submission{Requested: nodes, Available: len(registered)}
	jobID := uc.ids.NewID("job")
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, uc.log)
	if sub.Shortage() {
		log.Warn().Int("requested", nodes).Int("available", len(registered)).Msg("fewer nodes than requested")
	}

	var accepted []model.Node
	for i, n := range selected {
		req := model.TrainRequest{
			JobID:      jobID,
			NodeID:     n.ID,
			NodeIndex:  i,
			TotalNodes: len(selected),
			Epochs:     epochs,
			Code:       code,
		}
		ack, err := call(ctx, "train", uc.timeouts.TrainTimeout, func(ctx context.Context) (adapter.TrainAccepted, error) {
			return uc.client.StartTraining(ctx, n.BaseURL, req)
		})
		res := NodeSubmitResult{Node: *n}
		if err != nil {
			res.Err = err
			log.Warn().Err(err).Str("node_id", n.ID).Msg("submit to node failed")
		} else {
			res.Accepted = &ack
			accepted = append(accepted, *n)
		}
		sub.Results = append(sub.Results, res)
	}

	if len(accepted) == 0 {
		log.Warn().Msg("no node accepted the job")
		return sub, nil
	}

	job := &model.Job{
		ID:        jobID,
		Nodes:     accepted,
		Epochs:    epochs,
		StartTime: uc.now(),
		Status:    model.JobStatusRunning,
	}
	if err := uc.jobs.Save(ctx, job); err != nil {
		return sub, err
	}
	sub.Job = job
	log.Info().Int("nodes", len(accepted)).Int("epochs", epochs).Msg("job submitted")
	return sub, nil
}

func (uc *clusterUC) ListJobs(ctx context.Context) ([]*model.Job, error) {
	return uc.jobs.List(ctx)
}

func (uc *clusterUC) JobStatus(ctx context.Context, jobID string) (*model.Job, []NodeJobReport, error) {
	return uc.perNode(ctx, jobID, "job_status", func(ctx context.Context, n model.Node) (*model.WorkerJobRecord, error) {
		return uc.client.JobStatus(ctx, n.BaseURL, jobID)
	})
}

func (uc *clusterUC) CancelJob(ctx context.Context, jobID string) (*model.Job, []NodeJobReport, error) {
	return uc.perNode(ctx, jobID, "cancel", func(ctx context.Context, n model.Node) (*model.WorkerJobRecord, error) {
		return uc.client.CancelJob(ctx, n.BaseURL, jobID)
	})
}

// perNode calls fn once for every node of the job and reports each answer
// as-is. No aggregation is attempted.
func (uc *clusterUC) perNode(ctx context.Context, jobID, op string, fn func(ctx context.Context, n model.Node) (*model.WorkerJobRecord, error)) (*model.Job, []NodeJobReport, error) {
	job, err := uc.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, nil, err
	}

	reports := make([]NodeJobReport, 0, len(job.Nodes))
	for _, n := range job.Nodes {
		rec, err := call(ctx, op, uc.timeouts.JobStatusTimeout, func(ctx context.Context) (*model.WorkerJobRecord, error) {
			return fn(ctx, n)
		})
		reports = append(reports, NodeJobReport{Node: n, Record: rec, Err: err})
	}
	return job, reports, nil
}

func (uc *clusterUC) LastScript() (string, bool) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.lastScript, uc.lastScript != ""
}
