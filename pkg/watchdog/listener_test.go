package watchdog_test

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/watercache/watercache/pkg/observability"
	"github.com/watercache/watercache/pkg/watchdog"
)

func TestLogListenerMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := watchdog.LogListener{Logger: observability.NewZapLogger(zap.New(core))}

	l.OnNotResponding(600 * time.Millisecond)
	l.OnResponding(700 * time.Millisecond)
	l.OnTickSkip(3, 160*time.Millisecond)
	l.Exception(stderrors.New("boom"))

	want := []struct {
		msg   string
		level zapcore.Level
	}{
		{"tick has not responded for 600ms", zapcore.WarnLevel},
		{"tick started responding after 700ms", zapcore.InfoLevel},
		{"160ms behind, skipping 3 ticks", zapcore.WarnLevel},
		{"watchdog exception", zapcore.ErrorLevel},
	}

	entries := logs.All()
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Message != w.msg {
			t.Errorf("entry %d: expected %q, got %q", i, w.msg, entries[i].Message)
		}
		if entries[i].Level != w.level {
			t.Errorf("entry %d: expected level %v, got %v", i, w.level, entries[i].Level)
		}
	}
}

func TestMultiListenerFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := watchdog.MultiListener{a, b}

	m.OnNotResponding(time.Second)
	m.OnResponding(time.Second)
	m.OnTickSkip(2, time.Second)
	m.Exception(stderrors.New("boom"))

	for _, r := range []*recorder{a, b} {
		events, _, _ := r.snapshot()
		if len(events) != 4 {
			t.Errorf("expected 4 events, got %v", events)
		}
	}
}

func TestObservingListener(t *testing.T) {
	m := observability.NewMetrics("obs", nil)
	tracker := observability.NewAvailabilityTracker()
	l := watchdog.NewObservingListener(m, tracker)

	l.OnNotResponding(time.Second)
	if tracker.IsAvailable() {
		t.Error("expected a stall to mark the loop unavailable")
	}
	if tracker.CurrentDowntime() == nil {
		t.Error("expected an open downtime period")
	}

	l.OnResponding(2 * time.Second)
	if !tracker.IsAvailable() {
		t.Error("expected recovery to close the downtime period")
	}

	l.OnTickSkip(4, time.Second)
	l.Exception(stderrors.New("boom"))

	if got := testutil.ToFloat64(m.StallsTotal); got != 1 {
		t.Errorf("expected 1 stall, got %v", got)
	}
	if got := testutil.ToFloat64(m.TicksSkipped); got != 4 {
		t.Errorf("expected 4 skipped ticks, got %v", got)
	}
	if got := testutil.ToFloat64(m.Exceptions.WithLabelValues(observability.SourceSupervisor)); got != 1 {
		t.Errorf("expected 1 supervisor exception, got %v", got)
	}

	// Nil dependencies are tolerated.
	nilSafe := watchdog.NewObservingListener(nil, nil)
	nilSafe.OnNotResponding(time.Second)
	nilSafe.OnResponding(time.Second)
	nilSafe.OnTickSkip(1, time.Second)
	nilSafe.Exception(stderrors.New("boom"))
}
