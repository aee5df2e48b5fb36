// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package perf provides the bounded worker pool used to run scheduled
// tasks off the scheduler goroutine.
package perf

import (
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
)

const (
	// defaultQueueMultiplier is the multiplier for task queue size relative to maxWorkers
	defaultQueueMultiplier = 2
)

var (
	// ErrInvalidWorkers is returned for a non-positive worker count.
	ErrInvalidWorkers = stderrors.New("maxWorkers must be positive")

	// ErrQueueFull is returned by SubmitWait when the task was not accepted.
	ErrQueueFull = stderrors.New("worker pool queue is full or stopped")
)

// WorkerPool manages a pool of goroutines for concurrent task execution
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	logger     observability.Logger

	// mu guards the queue against close while a Submit is sending.
	mu         sync.RWMutex
	started    bool
	stopped    bool
	activeJobs atomic.Int32
	panics     atomic.Int64
}

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithPoolLogger sets the logger receiving recovered task panics.
func WithPoolLogger(l observability.Logger) PoolOption {
	return func(p *WorkerPool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithQueueSize overrides the queue capacity. Non-positive sizes are ignored.
func WithQueueSize(n int) PoolOption {
	return func(p *WorkerPool) {
		if n > 0 {
			p.taskQueue = make(chan func(), n)
		}
	}
}

// NewWorkerPool creates a new worker pool with the specified maximum number of workers
func NewWorkerPool(maxWorkers int, opts ...PoolOption) (*WorkerPool, error) {
	if maxWorkers <= 0 {
		return nil, errors.ValidationError("new worker pool", ErrInvalidWorkers).
			WithContext("max_workers", maxWorkers)
	}

	p := &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), maxWorkers*defaultQueueMultiplier),
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start starts the worker pool. Calling it again is a no-op.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := range p.maxWorkers {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// worker processes tasks until the queue is closed and drained
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.run(id, task)
	}
}

func (p *WorkerPool) run(id int, task func()) {
	p.activeJobs.Add(1)
	defer p.activeJobs.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("task panicked",
				observability.Int("worker", id),
				observability.Err(errors.Recovered(r)))
		}
	}()
	task()
}

// Submit submits a task to the worker pool.
// Returns false if the pool is stopped, the task is nil, or the task queue is full.
func (p *WorkerPool) Submit(task func()) bool {
	if task == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// SubmitWait submits a task and waits for it to complete
func (p *WorkerPool) SubmitWait(task func()) error {
	if task == nil {
		return errors.ValidationError("submit task", stderrors.New("task is nil"))
	}

	done := make(chan struct{})
	if !p.Submit(func() {
		defer close(done)
		task()
	}) {
		return errors.IllegalStateError("submit task", ErrQueueFull)
	}

	<-done
	return nil
}

// Stop stops accepting tasks, lets workers drain the queue and waits for them.
// Safe to call multiple times - subsequent calls are no-ops
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
}

// ActiveJobs returns the number of currently active jobs
func (p *WorkerPool) ActiveJobs() int {
	return int(p.activeJobs.Load())
}

// QueueSize returns the current size of the task queue
func (p *WorkerPool) QueueSize() int {
	return len(p.taskQueue)
}

// Panics returns the number of tasks that panicked.
func (p *WorkerPool) Panics() int64 {
	return p.panics.Load()
}
