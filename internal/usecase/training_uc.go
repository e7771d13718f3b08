package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
	"gpu-notebook-bridge/internal/domain/ports/repository"
	"gpu-notebook-bridge/internal/infra/logging"
	"gpu-notebook-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ TrainingUseCase = (*trainingUC)(nil)

// TrainingUseCase runs training jobs on the worker.
type TrainingUseCase interface {
	// Start stores a running record and queues the script. It returns as
	// soon as the job is queued; script errors end up on the record.
	Start(ctx context.Context, req model.TrainRequest) (*model.WorkerJobRecord, error)
	Status(ctx context.Context, jobID string) (*model.WorkerJobRecord, error)
	List(ctx context.Context) ([]*model.WorkerJobRecord, error)
	Cancel(ctx context.Context, jobID string) (*model.WorkerJobRecord, error)
}

// TrainingOptions carries the optional collaborators of the training use case.
type TrainingOptions struct {
	JobTimeout time.Duration
	Claims     repository.JobClaims
	Archives   []repository.JobArchive
	History    []repository.JobHistory
	Now        func() time.Time
}

type trainingUC struct {
	store    repository.WorkerJobStore
	queue    adapter.TaskQueue
	runner   adapter.TrainingRunner
	claims   repository.JobClaims
	archives []repository.JobArchive
	history  []repository.JobHistory
	timeout  time.Duration
	now      func() time.Time
	log      *zerolog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func NewTrainingUseCase(
	store repository.WorkerJobStore,
	queue adapter.TaskQueue,
	runner adapter.TrainingRunner,
	opts TrainingOptions,
	logger *zerolog.Logger,
) *trainingUC {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &trainingUC{
		store:    store,
		queue:    queue,
		runner:   runner,
		claims:   opts.Claims,
		archives: opts.Archives,
		history:  opts.History,
		timeout:  opts.JobTimeout,
		now:      opts.Now,
		log:      logger,
		cancels:  make(map[string]context.CancelFunc),
	}
}

func (uc *trainingUC) Start(ctx context.Context, req model.TrainRequest) (*model.WorkerJobRecord, error) {
	defer logging.TraceDuration(uc.log, "TrainingUC.Start")()

	req.JobID = strings.TrimSpace(req.JobID)
	if req.JobID == "" {
		metrics.IncJobRejected("invalid")
		return nil, fmt.Errorf("%w: job_id is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.Code) == "" {
		metrics.IncJobRejected("invalid")
		return nil, fmt.Errorf("%w: code is required", domain.ErrInvalidArgument)
	}
	if req.Epochs < 0 {
		metrics.IncJobRejected("invalid")
		return nil, fmt.Errorf("%w: epochs must not be negative", domain.ErrInvalidArgument)
	}
	if req.Epochs == 0 {
		req.Epochs = model.DefaultEpochs
	}

	token, err := uc.claim(ctx, req.JobID)
	if err != nil {
		return nil, err
	}

	rec := model.NewWorkerJobRecord(req, uc.now())
	if err := uc.store.Create(ctx, rec); err != nil {
		uc.release(ctx, req.JobID, token)
		if errors.Is(err, domain.ErrAlreadyExists) {
			metrics.IncJobRejected("duplicate")
			return nil, fmt.Errorf("job %s: %w", req.JobID, err)
		}
		return nil, err
	}

	jobID := req.JobID
	if err := uc.queue.Submit(func(poolCtx context.Context) error {
		return uc.execute(poolCtx, jobID)
	}); err != nil {
		_ = uc.store.Delete(ctx, jobID)
		uc.release(ctx, jobID, token)
		metrics.IncJobRejected("queue_full")
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}

	metrics.IncJobAccepted()
	logging.With(logging.WithJobID(ctx, jobID), uc.log).Info().
		Int("epochs", req.Epochs).Int("node_index", req.NodeIndex).Msg("training job queued")
	return rec.Clone(), nil
}

func (uc *trainingUC) claim(ctx context.Context, jobID string) (string, error) {
	if uc.claims == nil {
		return "", nil
	}
	token, err := uc.claims.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			metrics.IncJobRejected("duplicate")
			return "", fmt.Errorf("job %s: %w", jobID, err)
		}
		// the claim store is advisory; the in-memory table still rejects
		// duplicates seen by this process
		uc.log.Warn().Err(err).Str("job_id", jobID).Msg("job claim unavailable")
		return "", nil
	}
	return token, nil
}

func (uc *trainingUC) release(ctx context.Context, jobID, token string) {
	if uc.claims == nil || token == "" {
		return
	}
	if err := uc.claims.Release(ctx, jobID, token); err != nil {
		uc.log.Warn().Err(err).Str("job_id", jobID).Msg("release job claim")
	}
}

// execute runs one queued job. It never returns the script error: that is
// recorded on the job.
func (uc *trainingUC) execute(poolCtx context.Context, jobID string) error {
	// The cancel func is registered before the status check: a Cancel that
	// lands after the check always finds it.
	ctx, cancel := context.WithCancel(logging.WithJobID(poolCtx, jobID))
	if uc.timeout > 0 {
		ctx, cancel = withTimeout(ctx, cancel, uc.timeout)
	}
	uc.mu.Lock()
	uc.cancels[jobID] = cancel
	uc.mu.Unlock()
	defer func() {
		uc.mu.Lock()
		delete(uc.cancels, jobID)
		uc.mu.Unlock()
		cancel()
	}()

	rec, err := uc.store.Get(poolCtx, jobID)
	if err != nil {
		return err
	}
	if rec.Status != model.JobStatusRunning {
		// cancelled while queued
		return nil
	}

	log := logging.With(ctx, uc.log)
	log.Info().Msg("training job started")
	uc.archive(ctx, rec)
	metrics.IncJobsRunning()
	defer metrics.DecJobsRunning()

	progress := func(epoch int, loss float64) error {
		metrics.IncProgressUpdate()
		_, err := uc.store.Update(ctx, jobID, func(r *model.WorkerJobRecord) error {
			return r.UpdateProgress(epoch, loss)
		})
		return err
	}

	runErr := uc.runner.Run(ctx, rec.Config, progress)
	uc.finish(poolCtx, jobID, runErr, log)
	return nil
}

func withTimeout(parent context.Context, cancelParent context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		cancelParent()
	}
}

func (uc *trainingUC) finish(ctx context.Context, jobID string, runErr error, log *zerolog.Logger) {
	// the pool context may already be cancelled during shutdown
	ctx = context.WithoutCancel(ctx)
	now := uc.now()

	rec, err := uc.store.Update(ctx, jobID, func(r *model.WorkerJobRecord) error {
		switch {
		case runErr == nil:
			return r.Complete(now)
		case errors.Is(runErr, context.DeadlineExceeded):
			return r.Fail(now, domain.ErrJobTimeout)
		case errors.Is(runErr, context.Canceled):
			return r.Cancel(now)
		default:
			return r.Fail(now, runErr)
		}
	})
	if errors.Is(err, domain.ErrInvalidTransition) {
		// already cancelled through Cancel
		log.Debug().Msg("job finished after reaching a terminal state")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("finalize job record")
		return
	}

	metrics.ObserveJobFinished(string(rec.Status), rec.Elapsed(now))
	ev := log.Info()
	if rec.Status == model.JobStatusError {
		ev = log.Warn().Str("error", rec.Error)
	}
	ev.Str("status", string(rec.Status)).Int("epoch", rec.CurrentEpoch).Msg("training job finished")
	uc.archive(ctx, rec)
}

func (uc *trainingUC) Status(ctx context.Context, jobID string) (*model.WorkerJobRecord, error) {
	rec, err := uc.store.Get(ctx, jobID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	for _, h := range uc.history {
		rec, herr := h.FindByID(ctx, jobID)
		if herr == nil {
			return rec, nil
		}
		if !errors.Is(herr, domain.ErrNotFound) {
			uc.log.Warn().Err(herr).Str("job_id", jobID).Msg("job history lookup")
		}
	}
	return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
}

func (uc *trainingUC) List(ctx context.Context) ([]*model.WorkerJobRecord, error) {
	return uc.store.List(ctx)
}

func (uc *trainingUC) Cancel(ctx context.Context, jobID string) (*model.WorkerJobRecord, error) {
	now := uc.now()
	rec, err := uc.store.Update(ctx, jobID, func(r *model.WorkerJobRecord) error {
		return r.Cancel(now)
	})
	if err != nil {
		return rec, fmt.Errorf("cancel job %s: %w", jobID, err)
	}

	uc.mu.Lock()
	cancel := uc.cancels[jobID]
	uc.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	metrics.ObserveJobFinished(string(rec.Status), rec.Elapsed(now))
	logging.With(logging.WithJobID(ctx, jobID), uc.log).Info().Msg("training job cancelled")
	uc.archive(ctx, rec)
	return rec, nil
}

// archive copies rec to every configured sink; failures are logged only.
func (uc *trainingUC) archive(ctx context.Context, rec *model.WorkerJobRecord) {
	for _, a := range uc.archives {
		if err := a.Archive(ctx, rec); err != nil {
			uc.log.Warn().Err(err).Str("job_id", rec.JobID).Msg("archive job record")
		}
	}
}
