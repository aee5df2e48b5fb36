// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
)

type state int

const (
	stateStopped state = iota
	stateStarting
	stateRunning
)

func (s state) String() string {
	switch s {
	case stateStopped:
		return "stopped"
	case stateStarting:
		return "starting"
	case stateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// workerKey marks contexts handed to Tick by a watchdog's worker.
type workerKey struct{}

// Watchdog supervises the ticks of a single Tickable.
type Watchdog struct {
	tickable     Tickable
	tickInterval time.Duration
	maxTickTime  time.Duration
	id           string

	listenerMu sync.RWMutex
	listener   Listener

	logger  observability.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	state   state
	current *run

	running atomic.Bool
	ticking atomic.Bool
}

// run is the state of one Start..Stop lifetime.
type run struct {
	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	exited   chan struct{}
	worker   *worker
	err      error

	// interrupted is only touched by the supervisor goroutine.
	interrupted bool
}

// worker is the dedicated goroutine calling Tick.
type worker struct {
	wake   chan chan struct{}
	exited chan struct{}
	alive  atomic.Bool
	err    error
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithListener sets the event listener.
func WithListener(l Listener) Option {
	return func(w *Watchdog) {
		if l != nil {
			w.listener = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(w *Watchdog) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithMetrics records completed ticks and their duration.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Watchdog) {
		w.metrics = m
	}
}

// WithID sets the identifier used in log output. Defaults to a random UUID.
func WithID(id string) Option {
	return func(w *Watchdog) {
		if id != "" {
			w.id = id
		}
	}
}

// New creates a stopped watchdog for tickable.
func New(tickable Tickable, tickInterval, maxTickTime time.Duration, opts ...Option) (*Watchdog, error) {
	if tickable == nil {
		return nil, errors.ValidationError("new watchdog", ErrNilTickable)
	}
	if tickInterval <= 0 {
		return nil, errors.ValidationError("new watchdog", ErrInvalidInterval)
	}
	if maxTickTime <= 0 {
		return nil, errors.ValidationError("new watchdog", ErrInvalidDeadline)
	}

	w := &Watchdog{
		tickable:     tickable,
		tickInterval: tickInterval,
		maxTickTime:  maxTickTime,
		id:           uuid.NewString(),
		listener:     NopListener{},
		logger:       observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(observability.String("watchdog_id", w.id))
	return w, nil
}

// ID returns the watchdog identifier.
func (w *Watchdog) ID() string { return w.id }

// TickInterval returns the target period between tick starts.
func (w *Watchdog) TickInterval() time.Duration { return w.tickInterval }

// MaxTickTime returns the deadline after which a tick is reported as not responding.
func (w *Watchdog) MaxTickTime() time.Duration { return w.maxTickTime }

// Running reports whether the watchdog has been started and not yet asked to stop.
func (w *Watchdog) Running() bool { return w.running.Load() }

// Ticking reports whether a tick is in flight.
func (w *Watchdog) Ticking() bool { return w.ticking.Load() }

// SetListener replaces the listener. A nil listener restores the no-op default.
func (w *Watchdog) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	w.listenerMu.Lock()
	w.listener = l
	w.listenerMu.Unlock()
}

// Start runs the watchdog on a new goroutine. It fails if the watchdog is
// already running. Cancelling ctx interrupts the run.
func (w *Watchdog) Start(ctx context.Context) error {
	r, err := w.begin()
	if err != nil {
		return err
	}
	go func() {
		_ = w.run(ctx, r)
	}()
	return nil
}

// StartBlocking runs the watchdog on the calling goroutine until Stop is
// called, ctx is cancelled or the worker dies. It returns nil after Stop,
// an ErrInterrupted error after cancellation, or an ErrWorker error if a
// tick panicked.
func (w *Watchdog) StartBlocking(ctx context.Context) error {
	r, err := w.begin()
	if err != nil {
		return err
	}
	return w.run(ctx, r)
}

// Stop requests shutdown. The supervisor exits at its next wait or sleep
// and wakes the worker one last time so it can exit too. Stop does not
// wait; use Wait for that.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.running.Store(false)
	if r := w.current; r != nil {
		r.stopOnce.Do(func() { close(r.stopCh) })
		if r.cancel != nil {
			r.cancel()
		}
	}
}

// Wait blocks until both goroutines of the current or last run have exited.
func (w *Watchdog) Wait() {
	w.mu.Lock()
	r := w.current
	w.mu.Unlock()

	if r != nil {
		<-r.exited
	}
}

// IsWorkerContext reports whether ctx was handed to Tick by this
// watchdog's worker, letting supervised code detect reentrancy. It fails
// if the worker has never started or has exited.
func (w *Watchdog) IsWorkerContext(ctx context.Context) (bool, error) {
	w.mu.Lock()
	r := w.current
	w.mu.Unlock()

	if r == nil || r.worker == nil || !r.worker.alive.Load() {
		return false, errors.IllegalStateError("check worker context", ErrNotRunning)
	}
	owner, _ := ctx.Value(workerKey{}).(*Watchdog)
	return owner == w, nil
}

func (w *Watchdog) begin() (*run, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != stateStopped {
		return nil, errors.IllegalStateError("start watchdog", ErrAlreadyRunning).
			WithContext("state", w.state.String())
	}

	r := &run{
		stopCh: make(chan struct{}),
		exited: make(chan struct{}),
	}
	w.current = r
	w.state = stateStarting
	w.running.Store(true)
	return r, nil
}

func (w *Watchdog) run(ctx context.Context, r *run) error {
	defer func() {
		w.mu.Lock()
		w.state = stateStopped
		w.mu.Unlock()
		close(r.exited)
	}()

	w.tickable.Setup()

	tickCtx, cancel := context.WithCancel(context.WithValue(ctx, workerKey{}, w))
	defer cancel()

	wk := &worker{
		wake:   make(chan chan struct{}, 1),
		exited: make(chan struct{}),
	}
	wk.alive.Store(true)

	w.mu.Lock()
	r.cancel = cancel
	r.worker = wk
	w.state = stateRunning
	if !w.running.Load() {
		cancel()
	}
	w.mu.Unlock()

	go w.work(tickCtx, wk)
	w.logger.Debug("watchdog started",
		observability.Duration("tick_interval", w.tickInterval),
		observability.Duration("max_tick_time", w.maxTickTime))

	for w.running.Load() {
		if err := w.cycle(ctx, r); err != nil {
			break
		}
	}
	w.running.Store(false)
	w.ticking.Store(false)

	// Final wake: the worker observes the closed channel and exits.
	close(wk.wake)
	<-wk.exited

	w.logger.Debug("watchdog stopped")
	return r.err
}

// work runs one Tick per wake signal and closes the signal's completion
// channel when the tick returns.
func (w *Watchdog) work(ctx context.Context, wk *worker) {
	defer close(wk.exited)
	defer wk.alive.Store(false)

	for done := range wk.wake {
		if !w.tick(ctx, wk, done) {
			return
		}
	}
}

func (w *Watchdog) tick(ctx context.Context, wk *worker, done chan struct{}) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			wk.err = errors.WorkerError("tick panicked, worker exiting", errors.Recovered(r))
			ok = false
		}
	}()

	w.tickable.Tick(ctx)
	w.ticking.Store(false)
	close(done)
	return true
}

// wakeUp hands the worker its next tick. It is a no-op if the worker is not alive.
func (wk *worker) wakeUp(done chan struct{}) {
	if !wk.alive.Load() {
		return
	}
	select {
	case wk.wake <- done:
	default:
	}
}

// cycle runs one supervised tick followed by the sleep until the next one.
// It returns an error only when the worker died.
func (w *Watchdog) cycle(ctx context.Context, r *run) error {
	start := time.Now()
	w.ticking.Store(true)

	done := make(chan struct{})
	r.worker.wakeUp(done)

	deadline := time.NewTimer(w.maxTickTime)
	defer deadline.Stop()

	if err := w.await(ctx, r, done, deadline.C, "unable to wait for tick worker"); err != nil {
		return err
	}

	if w.ticking.Load() {
		w.notify("not_responding", func(l Listener) { l.OnNotResponding(time.Since(start)) })

		// The worker finishing is the only deadlock-free way back, so
		// this wait has no deadline.
		if err := w.await(ctx, r, done, nil, "unable to wait on stalled tick"); err != nil {
			return err
		}
		w.notify("responding", func(l Listener) { l.OnResponding(time.Since(start)) })
	}

	elapsed := time.Since(start)
	if w.metrics != nil {
		w.metrics.RecordTick(elapsed)
	}

	sleepFor := w.tickInterval - elapsed
	if sleepFor < 0 {
		skipped := int64(elapsed / w.tickInterval)
		w.notify("tick_skip", func(l Listener) { l.OnTickSkip(skipped, elapsed) })
		return nil
	}

	w.sleep(ctx, r, sleepFor)
	return nil
}

// await blocks until the tick completes, the worker dies, or deadline
// fires. A nil deadline waits without limit. Cancellation of ctx is
// reported once and stops the watchdog, after which the in-flight tick is
// still waited out.
func (w *Watchdog) await(ctx context.Context, r *run, done <-chan struct{}, deadline <-chan time.Time, what string) error {
	var cancelled <-chan struct{}
	if !r.interrupted {
		cancelled = ctx.Done()
	}

	for {
		select {
		case <-done:
			return nil
		case <-deadline:
			return nil
		case <-r.worker.exited:
			return w.workerDied(r)
		case <-cancelled:
			cancelled = nil
			w.interrupt(r, what, ctx.Err())
		}
	}
}

func (w *Watchdog) sleep(ctx context.Context, r *run, d time.Duration) {
	if !w.running.Load() {
		return
	}

	var cancelled <-chan struct{}
	if !r.interrupted {
		cancelled = ctx.Done()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-r.stopCh:
	case <-cancelled:
		w.interrupt(r, "unable to sleep", ctx.Err())
	}
}

func (w *Watchdog) interrupt(r *run, what string, cause error) {
	r.interrupted = true
	w.Stop()

	err := errors.InterruptedError(what, cause)
	if r.err == nil {
		r.err = err
	}
	w.exception(err)
}

func (w *Watchdog) workerDied(r *run) error {
	err := r.worker.err
	if err == nil {
		err = errors.WorkerError("worker exited unexpectedly", nil)
	}
	r.err = err

	w.Stop()
	w.logger.Error("tick worker died", observability.Err(err))
	w.exception(err)
	return err
}

func (w *Watchdog) exception(err error) {
	w.notify("exception", func(l Listener) { l.Exception(err) })
}

// notify invokes a listener callback. A panicking listener is logged and
// never stops the supervisor.
func (w *Watchdog) notify(event string, fn func(Listener)) {
	w.listenerMu.RLock()
	l := w.listener
	w.listenerMu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			err := errors.ListenerError("a listener produced an exception", errors.Recovered(r)).
				WithContext("event", event)
			w.logger.Error("listener failed", observability.String("event", event), observability.Err(err))
			if w.metrics != nil {
				w.metrics.RecordException(observability.SourceListener)
			}
		}
	}()
	fn(l)
}
