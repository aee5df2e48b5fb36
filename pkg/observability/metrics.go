// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exception sources used as the "source" label.
const (
	SourceTick       = "tick"
	SourceListener   = "listener"
	SourceSupervisor = "supervisor"
)

// Metrics holds the Prometheus metrics for caches, watchdogs and schedulers.
type Metrics struct {
	// Watchdog metrics
	TicksTotal    prometheus.Counter
	TickDuration  prometheus.Histogram
	StallsTotal   prometheus.Counter
	TicksSkipped  prometheus.Counter
	Exceptions    *prometheus.CounterVec

	// Cache metrics
	CacheItems     prometheus.Gauge
	CacheDisposals *prometheus.CounterVec

	// Scheduler metrics
	SchedulerTasks *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers metrics with the given namespace.
// A nil registerer uses a fresh private registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of supervised ticks completed",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of supervised ticks in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		StallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stalls_total",
			Help:      "Total number of ticks that exceeded the maximum tick time",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Total number of ticks skipped because a cycle overran the interval",
		}),
		Exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_total",
			Help:      "Total number of contained failures by source",
		}, []string{"source"}),
		CacheItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_items",
			Help:      "Number of items currently registered in the cache",
		}),
		CacheDisposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_disposals_total",
			Help:      "Total number of items removed from the cache by reason",
		}, []string{"reason"}),
		SchedulerTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_tasks_total",
			Help:      "Total number of scheduled tasks dispatched by mode",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.StallsTotal,
		m.TicksSkipped,
		m.Exceptions,
		m.CacheItems,
		m.CacheDisposals,
		m.SchedulerTasks,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// RecordTick records a completed tick.
func (m *Metrics) RecordTick(elapsed time.Duration) {
	m.TicksTotal.Inc()
	m.TickDuration.Observe(elapsed.Seconds())
}

// RecordStall records a tick that stopped responding.
func (m *Metrics) RecordStall() {
	m.StallsTotal.Inc()
}

// RecordTickSkip records skipped ticks.
func (m *Metrics) RecordTickSkip(skipped int64) {
	if skipped > 0 {
		m.TicksSkipped.Add(float64(skipped))
	}
}

// RecordException records a contained failure.
func (m *Metrics) RecordException(source string) {
	m.Exceptions.WithLabelValues(source).Inc()
}

// SetCacheItems sets the current cache size.
func (m *Metrics) SetCacheItems(n int) {
	m.CacheItems.Set(float64(n))
}

// RecordDisposal records an item leaving the cache.
func (m *Metrics) RecordDisposal(reason string) {
	m.CacheDisposals.WithLabelValues(reason).Inc()
}

// RecordSchedulerTask records a dispatched scheduler task.
func (m *Metrics) RecordSchedulerTask(mode string) {
	m.SchedulerTasks.WithLabelValues(mode).Inc()
}

// Handler returns an HTTP handler exposing the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
