package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Submit once the pool stopped accepting jobs.
var ErrClosed = errors.New("worker: pool closed")

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs submitted jobs on a fixed number of goroutines and hands every
// result to a callback.
type Pool struct {
	workers  int
	jobQueue chan Job
	onResult func(Result)

	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool with the given number of workers and queue depth.
// onResult may be nil.
func NewPool(workers, queueSize int, onResult func(Result)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, queueSize),
		onResult:   onResult,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			if p.onResult != nil && result != nil {
				p.onResult(result)
			}
		}
	}
}

// Submit queues job, blocking while the queue is full.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case <-p.ctx.Done():
		return ErrClosed
	case p.jobQueue <- job:
		return nil
	}
}

// Wait stops accepting jobs and blocks until the queued ones are done.
func (p *Pool) Wait() {
	p.close()
	p.wg.Wait()
}

// Shutdown cancels running jobs, drops queued ones and waits for the
// workers to exit.
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.close()
	p.wg.Wait()
}

func (p *Pool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
}
