package worker

import (
	"context"
	"errors"
	"sync"

	"gpu-notebook-bridge/internal/domain"
	"gpu-notebook-bridge/internal/domain/ports/adapter"
	"gpu-notebook-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Task is one unit of work; ctx is cancelled when the pool stops.
type Task = adapter.Task

var _ adapter.TaskQueue = (*Pool)(nil)

// Pool runs submitted tasks on a fixed number of goroutines. Submit never
// blocks: a full queue is reported as domain.ErrQueueFull.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan Task
	n      int
	log    *zerolog.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewPool(workers, queue int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 4
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Pool{jobs: make(chan Task, queue), n: workers, log: log}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-p.jobs:
					if !ok {
						return
					}
					metrics.SetQueueDepth(p.Pending())
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Int("queue", cap(p.jobs)).Msg("worker pool started")
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task error")
	}
}

// Stop cancels running tasks, drops queued ones and waits for the
// goroutines to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	metrics.SetQueueDepth(0)
	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return domain.ErrQueueFull
	}
	select {
	case p.jobs <- task:
		metrics.SetQueueDepth(p.Pending())
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// Pending is the number of queued tasks not yet picked up.
func (p *Pool) Pending() int { return len(p.jobs) }
