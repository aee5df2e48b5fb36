// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package observability

import (
	"sync"
	"time"
)

// AvailabilityTracker tracks how long a supervised tick loop has been
// unresponsive. Each stall opens a downtime period that is closed when the
// tick recovers.
type AvailabilityTracker struct {
	mu              sync.RWMutex
	uptimeStart     time.Time
	downtimePeriods []*DowntimePeriod
	totalChecks     int
	failedChecks    int
	lastCheck       time.Time
	lastStatus      bool
	window          time.Duration
	now             func() time.Time
}

// DowntimePeriod represents a period during which ticks were not responding.
type DowntimePeriod struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end,omitempty"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason,omitempty"`
}

// AvailabilityReport represents an availability report.
type AvailabilityReport struct {
	UptimePercent   float64           `json:"uptime_percent"`
	DowntimePercent float64           `json:"downtime_percent"`
	TotalUptime     time.Duration     `json:"total_uptime"`
	TotalDowntime   time.Duration     `json:"total_downtime"`
	DowntimePeriods []*DowntimePeriod `json:"downtime_periods"`
	TotalChecks     int               `json:"total_checks"`
	FailedChecks    int               `json:"failed_checks"`
	PeriodStart     time.Time         `json:"period_start"`
	PeriodEnd       time.Time         `json:"period_end"`
}

// NewAvailabilityTracker creates a new availability tracker with a 24h window.
func NewAvailabilityTracker() *AvailabilityTracker {
	now := time.Now()
	return &AvailabilityTracker{
		uptimeStart:     now,
		downtimePeriods: make([]*DowntimePeriod, 0),
		window:          24 * time.Hour,
		lastCheck:       now,
		lastStatus:      true,
		now:             time.Now,
	}
}

// RecordCheck records the outcome of one supervised tick.
func (t *AvailabilityTracker) RecordCheck(success bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.totalChecks++
	t.lastCheck = now

	if success {
		t.closeOpenLocked(now)
	} else {
		t.failedChecks++
		t.openLocked(now, reason)
	}
	t.lastStatus = success
}

// RecordStall opens a downtime period if none is open.
func (t *AvailabilityTracker) RecordStall(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failedChecks++
	t.openLocked(t.now(), reason)
	t.lastStatus = false
}

// RecordRecovery closes the open downtime period, if any.
func (t *AvailabilityTracker) RecordRecovery() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeOpenLocked(t.now())
	t.lastStatus = true
}

func (t *AvailabilityTracker) openLocked(now time.Time, reason string) {
	if n := len(t.downtimePeriods); n > 0 && t.downtimePeriods[n-1].End.IsZero() {
		return
	}
	t.downtimePeriods = append(t.downtimePeriods, &DowntimePeriod{
		Start:  now,
		Reason: reason,
	})
}

func (t *AvailabilityTracker) closeOpenLocked(now time.Time) {
	if n := len(t.downtimePeriods); n > 0 {
		last := t.downtimePeriods[n-1]
		if last.End.IsZero() {
			last.End = now
			last.Duration = now.Sub(last.Start)
		}
	}
}

// Report generates an availability report for the time window.
// An open period is reported up to now without being closed.
func (t *AvailabilityTracker) Report() *AvailabilityReport {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	windowStart := now.Add(-t.window)
	if windowStart.Before(t.uptimeStart) {
		windowStart = t.uptimeStart
	}

	totalDowntime := time.Duration(0)
	periods := make([]*DowntimePeriod, 0)
	for _, period := range t.downtimePeriods {
		p := *period
		if p.End.IsZero() {
			p.Duration = now.Sub(p.Start)
		}
		end := p.Start.Add(p.Duration)
		if end.After(windowStart) && p.Start.Before(now) {
			periods = append(periods, &p)
			totalDowntime += p.Duration
		}
	}

	totalTime := now.Sub(windowStart)
	if totalDowntime > totalTime {
		totalDowntime = totalTime
	}
	totalUptime := totalTime - totalDowntime
	uptimePercent := float64(100)
	if totalTime > 0 {
		uptimePercent = (float64(totalUptime) / float64(totalTime)) * 100
	}

	return &AvailabilityReport{
		UptimePercent:   uptimePercent,
		DowntimePercent: 100 - uptimePercent,
		TotalUptime:     totalUptime,
		TotalDowntime:   totalDowntime,
		DowntimePeriods: periods,
		TotalChecks:     t.totalChecks,
		FailedChecks:    t.failedChecks,
		PeriodStart:     windowStart,
		PeriodEnd:       now,
	}
}

// IsAvailable returns true if the last tick responded.
func (t *AvailabilityTracker) IsAvailable() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastStatus
}

// CurrentDowntime returns a copy of the open downtime period if any.
func (t *AvailabilityTracker) CurrentDowntime() *DowntimePeriod {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.downtimePeriods) == 0 {
		return nil
	}

	last := t.downtimePeriods[len(t.downtimePeriods)-1]
	if last.End.IsZero() {
		p := *last
		return &p
	}
	return nil
}

// SetWindow sets the time window for availability calculation. Periods
// that ended before the window are left out of Report.
func (t *AvailabilityTracker) SetWindow(window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.window = window
}

// Reset resets the tracker.
func (t *AvailabilityTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.uptimeStart = now
	t.downtimePeriods = make([]*DowntimePeriod, 0)
	t.totalChecks = 0
	t.failedChecks = 0
	t.lastCheck = now
	t.lastStatus = true
}
