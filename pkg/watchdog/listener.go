// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package watchdog

import (
	"fmt"
	"time"

	"github.com/watercache/watercache/pkg/observability"
)

// Listener receives watchdog events. Callbacks run on the supervisor
// goroutine; a panicking callback is recovered and logged.
type Listener interface {
	// OnNotResponding is called once when a tick exceeds the max tick time.
	OnNotResponding(elapsed time.Duration)
	// OnResponding is called when a stalled tick finally completes.
	OnResponding(elapsed time.Duration)
	// OnTickSkip is called after a completed cycle that overran the interval.
	OnTickSkip(skipped int64, elapsed time.Duration)
	// Exception receives interrupted waits and worker failures.
	Exception(err error)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnNotResponding(time.Duration) {}
func (NopListener) OnResponding(time.Duration) {}
func (NopListener) OnTickSkip(int64, time.Duration) {}
func (NopListener) Exception(error) {}

// LogListener writes every event to a logger.
type LogListener struct {
	Logger observability.Logger
}

func (l LogListener) OnNotResponding(elapsed time.Duration) {
	l.Logger.Warn(fmt.Sprintf("tick has not responded for %s", elapsed), observability.Duration("elapsed", elapsed))
}

func (l LogListener) OnResponding(elapsed time.Duration) {
	l.Logger.Info(fmt.Sprintf("tick started responding after %s", elapsed), observability.Duration("elapsed", elapsed))
}

func (l LogListener) OnTickSkip(skipped int64, elapsed time.Duration) {
	l.Logger.Warn(fmt.Sprintf("%s behind, skipping %d ticks", elapsed, skipped),
		observability.Int64("ticks_skipped", skipped),
		observability.Duration("elapsed", elapsed))
}

func (l LogListener) Exception(err error) {
	l.Logger.Error("watchdog exception", observability.Err(err))
}

// MultiListener fans events out to every listener in order.
type MultiListener []Listener

func (m MultiListener) OnNotResponding(elapsed time.Duration) {
	for _, l := range m {
		l.OnNotResponding(elapsed)
	}
}

func (m MultiListener) OnResponding(elapsed time.Duration) {
	for _, l := range m {
		l.OnResponding(elapsed)
	}
}

func (m MultiListener) OnTickSkip(skipped int64, elapsed time.Duration) {
	for _, l := range m {
		l.OnTickSkip(skipped, elapsed)
	}
}

func (m MultiListener) Exception(err error) {
	for _, l := range m {
		l.Exception(err)
	}
}

// ObservingListener records stalls, skips and exceptions in Prometheus
// metrics and stall periods in an availability tracker. Either may be nil.
type ObservingListener struct {
	metrics *observability.Metrics
	tracker *observability.AvailabilityTracker
}

// NewObservingListener creates an ObservingListener.
func NewObservingListener(m *observability.Metrics, t *observability.AvailabilityTracker) *ObservingListener {
	return &ObservingListener{metrics: m, tracker: t}
}

func (o *ObservingListener) OnNotResponding(elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordStall()
	}
	if o.tracker != nil {
		o.tracker.RecordStall(fmt.Sprintf("tick not responding after %s", elapsed))
	}
}

func (o *ObservingListener) OnResponding(time.Duration) {
	if o.tracker != nil {
		o.tracker.RecordRecovery()
	}
}

func (o *ObservingListener) OnTickSkip(skipped int64, _ time.Duration) {
	if o.metrics != nil {
		o.metrics.RecordTickSkip(skipped)
	}
}

func (o *ObservingListener) Exception(error) {
	if o.metrics != nil {
		o.metrics.RecordException(observability.SourceSupervisor)
	}
}
