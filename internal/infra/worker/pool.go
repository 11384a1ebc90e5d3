// File: internal/infra/worker/pool.go

// Package worker provides a small bounded pool plus the tracking task that
// follows every accepted submission.
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("worker queue full")

type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of goroutines. Submission never
// blocks; when the queue is saturated the task is dropped with ErrQueueFull
// and the caller decides whether that matters.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	compLog := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  &compLog,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Error().Err(err).Int("worker", id).Msg("task error")
					}
				}
			}
		}(i)
	}
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	case <-p.quit:
		return errors.New("pool stopped")
	default:
		return ErrQueueFull
	}
}
