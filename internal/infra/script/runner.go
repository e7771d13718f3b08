// Package script evaluates training scripts with a restricted expression
// engine. Scripts have no I/O and no imports; the only way to affect the
// outside world is through the functions bound in the environment.
package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/model"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
	"gpu-notebook-bridge/internal/infra/logging"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"
)

var _ adapter.TrainingRunner = (*Runner)(nil)

// maxSleep caps a single sleep() call.
const maxSleep = time.Hour

type Runner struct {
	maxNodes uint
	log      *zerolog.Logger
}

func NewRunner(maxNodes uint, log *zerolog.Logger) *Runner {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Runner{maxNodes: maxNodes, log: log}
}

// Check compiles code without running it, so malformed scripts can be
// rejected at submission time.
func (r *Runner) Check(code string) error {
	_, err := r.compile(code, newSession(context.Background(), nil, r.log))
	return err
}

// Run compiles and evaluates req.Code. It returns ctx.Err() when the job is
// cancelled or times out, and an error wrapping domain.ErrExecution when the
// script itself fails.
func (r *Runner) Run(ctx context.Context, req model.TrainRequest, progress adapter.ProgressFunc) error {
	log := logging.With(logging.WithJobID(ctx, req.JobID), r.log)
	s := newSession(ctx, progress, log)

	program, err := r.compile(req.Code, s)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := expr.Run(program, environment(req))
		done <- err
	}()

	// A script stuck in a pure loop cannot be interrupted; its goroutine is
	// abandoned and every later callback sees the cancelled context.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if cause := s.failure(); cause != nil {
			return cause
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrExecution, err)
		}
		return nil
	}
}

func (r *Runner) compile(code string, s *session) (*vm.Program, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: empty script", domain.ErrInvalidArgument)
	}
	opts := []expr.Option{
		expr.Env(environment(model.TrainRequest{})),
		expr.Function("update_progress", s.updateProgress),
		expr.Function("sleep", s.sleep),
		expr.Function("log", s.logLine),
		expr.Function("fail", s.fail),
	}
	if r.maxNodes > 0 {
		opts = append(opts, expr.MaxNodes(r.maxNodes))
	}
	program, err := expr.Compile(code, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %v", domain.ErrExecution, err)
	}
	return program, nil
}

func environment(req model.TrainRequest) map[string]any {
	epochs := req.Epochs
	if epochs <= 0 {
		epochs = model.DefaultEpochs
	}
	return map[string]any{
		"config": map[string]any{
			"job_id":      req.JobID,
			"node_id":     req.NodeID,
			"node_index":  req.NodeIndex,
			"total_nodes": req.TotalNodes,
			"epochs":      epochs,
		},
		"job_id":      req.JobID,
		"epochs":      epochs,
		"node_index":  req.NodeIndex,
		"total_nodes": req.TotalNodes,
	}
}

// session holds the per-run state the bound functions close over.
type session struct {
	ctx      context.Context
	progress adapter.ProgressFunc
	log      *zerolog.Logger

	mu    sync.Mutex
	cause error
}

func newSession(ctx context.Context, progress adapter.ProgressFunc, log *zerolog.Logger) *session {
	return &session{ctx: ctx, progress: progress, log: log}
}

// record keeps the first error raised from a bound function; the engine
// decorates errors with source positions, so Run reports this one instead.
func (s *session) record(err error) error {
	s.mu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.mu.Unlock()
	return err
}

func (s *session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *session) updateProgress(params ...any) (any, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, s.record(err)
	}
	if len(params) != 2 {
		return nil, s.record(fmt.Errorf("%w: update_progress expects (epoch, loss)", domain.ErrExecution))
	}
	epoch, ok := toInt(params[0])
	if !ok {
		return nil, s.record(fmt.Errorf("%w: epoch must be a number, got %T", domain.ErrExecution, params[0]))
	}
	loss, ok := toFloat(params[1])
	if !ok {
		return nil, s.record(fmt.Errorf("%w: loss must be a number, got %T", domain.ErrExecution, params[1]))
	}
	if s.progress != nil {
		if err := s.progress(epoch, loss); err != nil {
			return nil, s.record(err)
		}
	}
	return nil, nil
}

func (s *session) sleep(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, s.record(fmt.Errorf("%w: sleep expects (ms)", domain.ErrExecution))
	}
	ms, ok := toFloat(params[0])
	if !ok || ms < 0 {
		return nil, s.record(fmt.Errorf("%w: sleep needs a non-negative number", domain.ErrExecution))
	}
	d := time.Duration(ms * float64(time.Millisecond))
	if d > maxSleep {
		d = maxSleep
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return nil, s.record(s.ctx.Err())
	case <-t.C:
		return nil, nil
	}
}

func (s *session) logLine(params ...any) (any, error) {
	s.log.Info().Str("source", "script").Msg(fmt.Sprint(params...))
	return nil, nil
}

func (s *session) fail(params ...any) (any, error) {
	msg := "fail() called"
	if len(params) > 0 {
		msg = fmt.Sprint(params...)
	}
	return nil, s.record(fmt.Errorf("%w: %s", domain.ErrExecution, msg))
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
