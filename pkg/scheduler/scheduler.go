// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package scheduler runs one-shot callbacks at or after a point in time,
// either inline on the scheduler goroutine or on an Executor.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
)

// Dispatch modes used as the "mode" metric label.
const (
	ModeInline = "inline"
	ModeAsync  = "async"
)

// TaskID identifies a scheduled task. IDs increase and are never reused.
type TaskID int64

// Executor runs callbacks off the scheduler goroutine. Submit reports
// whether the callback was accepted. *perf.WorkerPool satisfies it.
type Executor interface {
	Submit(task func()) bool
}

// Scheduler dispatches due tasks. Tasks due at the same instant have no
// ordering guarantee.
type Scheduler struct {
	mu     sync.Mutex
	queue  taskQueue
	byID   map[TaskID]*task
	nextID TaskID

	// ready is only touched by the loop goroutine. Start joins the
	// previous loop before launching another.
	ready *deque.Deque[*task]

	executor Executor
	logger   observability.Logger
	metrics  *observability.Metrics

	wake chan struct{}

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithExecutor enables asynchronous dispatch.
func WithExecutor(e Executor) Option {
	return func(s *Scheduler) {
		s.executor = e
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics counts dispatched tasks by mode.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a stopped scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		byID:   make(map[TaskID]*task),
		ready:  deque.New[*task](),
		logger: observability.NopLogger(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Async reports whether tasks are dispatched to an Executor.
func (s *Scheduler) Async() bool { return s.executor != nil }

// RunAt schedules fn to run at or after at. Times in the past run on the
// next pass.
func (s *Scheduler) RunAt(fn func(), at time.Time) (TaskID, error) {
	if fn == nil {
		return 0, errors.ValidationError("schedule task", ErrNilTask)
	}

	s.mu.Lock()
	s.nextID++
	t := &task{id: s.nextID, fn: fn, at: at}
	heap.Push(&s.queue, t)
	s.byID[t.id] = t
	s.mu.Unlock()

	s.signal()
	return t.id, nil
}

// RunAfter schedules fn to run once d has elapsed.
func (s *Scheduler) RunAfter(fn func(), d time.Duration) (TaskID, error) {
	return s.RunAt(fn, time.Now().Add(d))
}

// Cancel removes a pending task. It returns false if the task is unknown
// or has already been dispatched.
func (s *Scheduler) Cancel(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	heap.Remove(&s.queue, t.index)
	return true
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Start launches the dispatch loop. A loop that is still winding down
// after Stop is joined first, so at most one loop owns the ready queue.
func (s *Scheduler) Start() error {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.cancel != nil {
		return errors.IllegalStateError("start scheduler", ErrAlreadyRunning)
	}
	if s.done != nil {
		// The loop never takes loopMu.
		<-s.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, done)
	s.logger.Debug("scheduler started", observability.Any("async", s.Async()))
	return nil
}

// Stop ends the dispatch loop. Pending tasks stay queued for a later Start.
func (s *Scheduler) Stop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
}

// Wait blocks until the most recently started loop has exited.
func (s *Scheduler) Wait() {
	s.loopMu.Lock()
	done := s.done
	s.loopMu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the dispatch loop is active.
func (s *Scheduler) Running() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		next, ok := s.collect(time.Now())
		for s.ready.Len() > 0 {
			if ctx.Err() != nil {
				break
			}
			s.dispatch(s.ready.PopFront())
		}

		var timeout <-chan time.Time
		var timer *time.Timer
		if ok {
			timer = time.NewTimer(time.Until(next))
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
		case <-s.wake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
		if ctx.Err() != nil {
			s.requeue()
			s.logger.Debug("scheduler stopped")
			return
		}
	}
}

// collect moves every due task to the ready queue and returns the due
// time of the earliest remaining task.
func (s *Scheduler) collect(now time.Time) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		t := s.queue.peek()
		if t == nil {
			return time.Time{}, false
		}
		if t.at.After(now) {
			return t.at, true
		}
		heap.Pop(&s.queue)
		delete(s.byID, t.id)
		s.ready.PushBack(t)
	}
}

// requeue returns tasks collected but not dispatched before a stop.
func (s *Scheduler) requeue() {
	if s.ready.Len() == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.ready.Len() > 0 {
		t := s.ready.PopFront()
		heap.Push(&s.queue, t)
		s.byID[t.id] = t
	}
}

func (s *Scheduler) dispatch(t *task) {
	if s.executor != nil {
		if s.executor.Submit(t.fn) {
			s.record(ModeAsync)
			return
		}
		s.logger.Warn("executor rejected task, running inline", observability.Int64("task_id", int64(t.id)))
	}
	s.runInline(t)
}

func (s *Scheduler) runInline(t *task) {
	s.record(ModeInline)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked",
				observability.Int64("task_id", int64(t.id)),
				observability.Err(errors.Recovered(r)))
		}
	}()
	t.fn()
}

func (s *Scheduler) record(mode string) {
	if s.metrics != nil {
		s.metrics.RecordSchedulerTask(mode)
	}
}
