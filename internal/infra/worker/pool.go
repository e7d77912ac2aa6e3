// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"ai-answering-machine/internal/infra/metrics"
)

// A very small worker pool that runs submitted tasks in the background,
// independent of the request that submitted them.

type Task = func(ctx context.Context) error

var (
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Pool struct {
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	jobs    chan Task
	n       int
	log     *zerolog.Logger
}

func NewPool(workers, queue int, log *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
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

// Start launches the workers. Tasks receive ctx; cancelling it aborts the
// running tasks but queued ones are still handed out until Stop.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				p.run(ctx, id, task)
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWorkerTask("error")
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		metrics.IncWorkerTask("error")
		p.log.Warn().Err(err).Int("worker", id).Msg("worker task error")
		return
	}
	metrics.IncWorkerTask("ok")
}

// Stop rejects new tasks, lets the queued ones finish and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated; callers decide whether to run inline
		metrics.IncWorkerTask("rejected")
		return ErrQueueFull
	}
}
