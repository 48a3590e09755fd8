package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// JobHandler processes one job. ctx is canceled when the pool stops.
type JobHandler func(ctx context.Context, workerID int, job Job)

// WorkerPool manages a fixed set of worker goroutines that pull jobs from a
// JobReader. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// jobs provides read access to the jobs to be processed
	jobs JobReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	handler JobHandler

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once

	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// NewWorkerPool creates a new worker pool. Workers are not started until Start.
func NewWorkerPool(jobs JobReader, config WorkerPoolConfig, handler JobHandler, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobs:        jobs,
		workerCount: workerCount,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", "worker_count", p.workerCount)
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop signals every worker to exit and waits for in-flight jobs to return.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

// worker blocks on the dispatch channel until a job arrives or the pool stops.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	ch := p.jobs.GetChannel()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case job, ok := <-ch:
			if !ok {
				p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			p.run(id, job)
		}
	}
}

// run shields the worker from a panicking handler so the pool never shrinks.
func (p *WorkerPool) run(id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job handler panicked",
				"worker_id", id,
				"task_id", job.TaskID,
				"item_id", job.ItemID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	p.handler(p.ctx, id, job)
}
