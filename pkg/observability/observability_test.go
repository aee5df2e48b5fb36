package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core)).With(String("component", "watchdog"))

	l.Warn("tick stalled", Duration("elapsed", 250*time.Millisecond), Int64("id", 4), Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "tick stalled", entries[0].Message)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	require.Equal(t, "watchdog", fields["component"])
	require.Equal(t, 250*time.Millisecond, fields["elapsed"])
	require.Equal(t, int64(4), fields["id"])
	require.Equal(t, "boom", fields["error"])
}

func TestNewLoggerValidation(t *testing.T) {
	_, err := NewLogger("verbose", "json")
	require.Error(t, err)

	_, err = NewLogger("info", "xml")
	require.Error(t, err)

	l, err := NewLogger("debug", "console")
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info("ignored", Any("k", 1))
	require.NotNil(t, l.With(String("a", "b")))
	require.NoError(t, Sync(l))
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordTick(10 * time.Millisecond)
	m.RecordTick(20 * time.Millisecond)
	m.RecordStall()
	m.RecordTickSkip(3)
	m.RecordTickSkip(0)
	m.RecordException(SourceTick)
	m.RecordException(SourceTick)
	m.RecordException(SourceListener)
	m.SetCacheItems(7)
	m.RecordDisposal("expired")
	m.RecordSchedulerTask("inline")

	require.Equal(t, float64(2), testutil.ToFloat64(m.TicksTotal))
	require.Equal(t, float64(1), testutil.ToFloat64(m.StallsTotal))
	require.Equal(t, float64(3), testutil.ToFloat64(m.TicksSkipped))
	require.Equal(t, float64(2), testutil.ToFloat64(m.Exceptions.WithLabelValues(SourceTick)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.Exceptions.WithLabelValues(SourceListener)))
	require.Equal(t, float64(7), testutil.ToFloat64(m.CacheItems))
	require.Equal(t, float64(1), testutil.ToFloat64(m.CacheDisposals.WithLabelValues("expired")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.SchedulerTasks.WithLabelValues("inline")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("wc", prometheus.NewRegistry())
	m.RecordTick(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "wc_ticks_total 1"))
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAvailabilityStallPeriods(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	tr := NewAvailabilityTracker()
	tr.now = clock.now
	tr.Reset()

	clock.advance(60 * time.Second)
	tr.RecordStall("tick exceeded 500ms")
	require.False(t, tr.IsAvailable())
	require.NotNil(t, tr.CurrentDowntime())

	// A second stall report while one is open does not start a new period.
	tr.RecordStall("again")

	clock.advance(20 * time.Second)
	tr.RecordRecovery()
	require.True(t, tr.IsAvailable())
	require.Nil(t, tr.CurrentDowntime())

	clock.advance(20 * time.Second)
	report := tr.Report()
	require.Len(t, report.DowntimePeriods, 1)
	require.Equal(t, 20*time.Second, report.TotalDowntime)
	require.Equal(t, 100*time.Second, report.TotalUptime+report.TotalDowntime)
	require.InDelta(t, 80.0, report.UptimePercent, 0.001)
	require.Equal(t, 2, report.FailedChecks)
}

func TestAvailabilityWindowDropsOldPeriods(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := NewAvailabilityTracker()
	tr.now = clock.now
	tr.Reset()
	tr.SetWindow(time.Minute)

	clock.advance(10 * time.Second)
	tr.RecordStall("early")
	clock.advance(10 * time.Second)
	tr.RecordRecovery()

	clock.advance(2 * time.Minute)
	tr.RecordStall("recent")
	clock.advance(15 * time.Second)
	tr.RecordRecovery()
	clock.advance(15 * time.Second)

	report := tr.Report()
	require.Len(t, report.DowntimePeriods, 1)
	require.Equal(t, 15*time.Second, report.TotalDowntime)
	require.Equal(t, clock.t.Add(-time.Minute), report.PeriodStart)
	require.InDelta(t, 75.0, report.UptimePercent, 0.001)
}

func TestAvailabilityRecordCheck(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := NewAvailabilityTracker()
	tr.now = clock.now
	tr.Reset()

	tr.RecordCheck(true, "")
	clock.advance(time.Second)
	tr.RecordCheck(false, "stalled")
	clock.advance(time.Second)

	report := tr.Report()
	require.Equal(t, 2, report.TotalChecks)
	require.Equal(t, 1, report.FailedChecks)
	require.Equal(t, time.Second, report.TotalDowntime)

	tr.RecordCheck(true, "")
	require.Nil(t, tr.CurrentDowntime())
}
