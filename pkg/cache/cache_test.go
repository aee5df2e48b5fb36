package cache_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/watercache/watercache/pkg/cache"
	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
)

// testItem records every hook invocation.
type testItem struct {
	cache.Base

	mu         sync.Mutex
	ticks      int
	disposals  []cache.DisposeReason
	registered *cache.Cache

	keep    bool  // OnDispose(DisposeExpired) returns false when set
	tickErr error // returned from Tick
	panics  bool  // Tick panics when set
}

func newTestItem(lifetime time.Duration) *testItem {
	return &testItem{Base: cache.NewBase(lifetime)}
}

func (i *testItem) OnRegister(c *cache.Cache) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.registered = c
}

func (i *testItem) Tick(context.Context) error {
	i.mu.Lock()
	i.ticks++
	i.mu.Unlock()
	if i.panics {
		panic("tick exploded")
	}
	return i.tickErr
}

func (i *testItem) OnDispose(reason cache.DisposeReason) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.disposals = append(i.disposals, reason)
	if reason == cache.DisposeExpired {
		return !i.keep
	}
	return true
}

func (i *testItem) tickCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ticks
}

func (i *testItem) disposeReasons() []cache.DisposeReason {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]cache.DisposeReason(nil), i.disposals...)
}

func TestRegisterAssignsIncreasingIDs(t *testing.T) {
	c := cache.New()

	var last cache.ID
	for n := 0; n < 10; n++ {
		item := newTestItem(cache.Forever)
		id, err := c.Register(item)
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if id <= last {
			t.Fatalf("expected id > %d, got %d", last, id)
		}
		if item.ID() != id {
			t.Errorf("item stored id %d, want %d", item.ID(), id)
		}
		if item.registered != c {
			t.Error("OnRegister was not invoked with the cache")
		}
		// Disposing must never let an id be reused.
		if n%2 == 0 && !c.Dispose(id) {
			t.Fatalf("dispose %d failed", id)
		}
		last = id
	}

	if c.Len() != 5 {
		t.Errorf("expected 5 items, got %d", c.Len())
	}
}

func TestRegisterNil(t *testing.T) {
	c := cache.New()

	_, err := c.Register(nil)
	if !stderrors.Is(err, cache.ErrNilItem) {
		t.Errorf("expected ErrNilItem, got %v", err)
	}
	if !errors.IsType(err, errors.ErrValidation) {
		t.Errorf("expected validation error type, got %v", err)
	}
}

func TestLookups(t *testing.T) {
	c := cache.New()
	item := newTestItem(time.Hour)
	other := newTestItem(time.Hour)

	id, _ := c.Register(item)

	got, ok := c.Get(id)
	if !ok || got != item {
		t.Fatalf("Get(%d) = %v, %v", id, got, ok)
	}
	if !c.Has(id) || !c.HasItem(item) {
		t.Error("expected item to be present")
	}
	if c.HasItem(other) || c.HasItem(nil) {
		t.Error("unregistered item reported present")
	}
	if _, ok := c.Get(id + 100); ok {
		t.Error("expected miss for unknown id")
	}
	if item.tickCount() != 0 || len(item.disposeReasons()) != 0 {
		t.Error("lookups must not invoke hooks")
	}
}

func TestDispose(t *testing.T) {
	c := cache.New()
	item := newTestItem(time.Hour)
	id, _ := c.Register(item)

	if c.Dispose(id + 1) {
		t.Error("dispose of absent id returned true")
	}
	if len(item.disposeReasons()) != 0 {
		t.Error("dispose of absent id invoked a hook")
	}

	if !c.Dispose(id) {
		t.Fatal("dispose returned false")
	}
	if c.Has(id) {
		t.Error("item still present after dispose")
	}
	reasons := item.disposeReasons()
	if len(reasons) != 1 || reasons[0] != cache.DisposeManual {
		t.Errorf("expected one manual disposal, got %v", reasons)
	}

	if c.DisposeItem(item) {
		t.Error("second dispose returned true")
	}
	if len(item.disposeReasons()) != 1 {
		t.Error("second dispose invoked the hook again")
	}
	if c.DisposeItem(nil) {
		t.Error("dispose of nil item returned true")
	}
}

func TestExpireTime(t *testing.T) {
	finite := cache.NewBase(250 * time.Millisecond)
	if got, want := finite.ExpireTime(), finite.CreatedAt().Add(250*time.Millisecond); !got.Equal(want) {
		t.Errorf("ExpireTime() = %v, want %v", got, want)
	}

	infinite := cache.NewBase(-5 * time.Second)
	if !infinite.ExpireTime().IsZero() {
		t.Errorf("expected zero expire time for infinite lifetime, got %v", infinite.ExpireTime())
	}
	if infinite.Lifetime() != cache.Forever {
		t.Errorf("expected Forever lifetime, got %v", infinite.Lifetime())
	}
}

func TestTickExpiresZeroLifetimeOnFirstPass(t *testing.T) {
	c := cache.New()
	item := newTestItem(0)
	id, _ := c.Register(item)

	c.Tick(context.Background())

	if c.Has(id) {
		t.Error("item with zero lifetime survived the first pass")
	}
	reasons := item.disposeReasons()
	if len(reasons) != 1 || reasons[0] != cache.DisposeExpired {
		t.Errorf("expected one expired disposal, got %v", reasons)
	}
	if item.tickCount() != 0 {
		t.Error("expired item must not be ticked")
	}
}

func TestTickTicksLiveAndInfiniteItems(t *testing.T) {
	c := cache.New()
	live := newTestItem(time.Hour)
	forever := newTestItem(cache.Forever)
	c.Register(live)
	c.Register(forever)

	for n := 0; n < 3; n++ {
		c.Tick(context.Background())
	}

	if live.tickCount() != 3 || forever.tickCount() != 3 {
		t.Errorf("expected 3 ticks each, got %d and %d", live.tickCount(), forever.tickCount())
	}
	if c.Len() != 2 {
		t.Errorf("expected both items to remain, got %d", c.Len())
	}
}

func TestTickSelfRenewal(t *testing.T) {
	c := cache.New()
	item := newTestItem(0)
	item.keep = true
	id, _ := c.Register(item)

	c.Tick(context.Background())
	c.Tick(context.Background())

	if !c.Has(id) {
		t.Fatal("item vetoing disposal was removed")
	}
	if got := len(item.disposeReasons()); got != 2 {
		t.Errorf("expected the item to be offered for disposal on each pass, got %d", got)
	}

	item.mu.Lock()
	item.keep = false
	item.mu.Unlock()
	c.Tick(context.Background())
	if c.Has(id) {
		t.Error("item was not removed once it allowed disposal")
	}
}

// disposingItem calls Dispose on itself from its expiry hook, the same
// interleaving as a manual Dispose racing the maintenance pass.
type disposingItem struct {
	cache.Base
	c        *cache.Cache
	disposed bool
	reasons  []cache.DisposeReason
}

func (i *disposingItem) OnDispose(reason cache.DisposeReason) bool {
	i.reasons = append(i.reasons, reason)
	if reason == cache.DisposeExpired {
		i.disposed = i.c.Dispose(i.ID())
	}
	return true
}

func TestExpiryHookRunsOnceAgainstDispose(t *testing.T) {
	c := cache.New()
	item := &disposingItem{Base: cache.NewBase(0), c: c}
	id, _ := c.Register(item)

	c.Tick(context.Background())

	if item.disposed {
		t.Error("Dispose claimed an item already being expired")
	}
	if len(item.reasons) != 1 || item.reasons[0] != cache.DisposeExpired {
		t.Errorf("expected a single expired hook, got %v", item.reasons)
	}
	if c.Has(id) {
		t.Error("expired item still registered")
	}
}

func TestTickIsolatesFailures(t *testing.T) {
	var mu sync.Mutex
	var reported []error
	c := cache.New(cache.WithListener(cache.ListenerFunc(func(err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	})))

	cause := stderrors.New("item failure")
	failing := newTestItem(time.Hour)
	failing.tickErr = cause
	panicking := newTestItem(time.Hour)
	panicking.panics = true
	healthy := newTestItem(time.Hour)
	expiredItem := newTestItem(0)

	c.Register(failing)
	c.Register(panicking)
	c.Register(healthy)
	c.Register(expiredItem)

	c.Tick(context.Background())

	if healthy.tickCount() != 1 {
		t.Error("healthy item was not ticked")
	}
	if c.HasItem(expiredItem) {
		t.Error("expired item was not removed")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported failures, got %d: %v", len(reported), reported)
	}
	var sawCause bool
	for _, err := range reported {
		if !errors.IsType(err, errors.ErrTick) {
			t.Errorf("expected tick error, got %v", err)
		}
		if stderrors.Is(err, cause) {
			sawCause = true
		}
	}
	if !sawCause {
		t.Error("original cause was not wrapped")
	}
}

func TestTickWithoutListenerContinues(t *testing.T) {
	c := cache.New()
	bad := newTestItem(time.Hour)
	bad.panics = true
	good := newTestItem(time.Hour)
	c.Register(bad)
	c.Register(good)

	c.Tick(context.Background())
	c.SetListener(nil)
	c.Tick(context.Background())

	if good.tickCount() != 2 {
		t.Errorf("expected 2 ticks, got %d", good.tickCount())
	}
}

func TestPanickingListenerDoesNotAbortPass(t *testing.T) {
	c := cache.New()
	c.SetListener(cache.ListenerFunc(func(error) { panic("listener exploded") }))

	bad := newTestItem(time.Hour)
	bad.tickErr = stderrors.New("fail")
	good := newTestItem(time.Hour)
	c.Register(bad)
	c.Register(good)

	for n := 0; n < 2; n++ {
		c.Tick(context.Background())
	}
	if good.tickCount() != 2 {
		t.Errorf("expected 2 ticks, got %d", good.tickCount())
	}
}

func TestTickStopsWhenContextCancelled(t *testing.T) {
	c := cache.New()
	item := newTestItem(time.Hour)
	c.Register(item)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Tick(ctx)

	if item.tickCount() != 0 {
		t.Error("cancelled pass ticked an item")
	}
}

func TestWithClockDrivesExpiry(t *testing.T) {
	var offset atomic.Int64
	c := cache.New(cache.WithClock(func() time.Time {
		return time.Now().Add(time.Duration(offset.Load()))
	}))
	item := newTestItem(time.Hour)
	id, _ := c.Register(item)

	c.Tick(context.Background())
	if !c.Has(id) {
		t.Fatal("item expired early")
	}

	offset.Store(int64(2 * time.Hour))
	c.Tick(context.Background())
	if c.Has(id) {
		t.Error("item survived past its lifetime")
	}
}

func TestConcurrentRegisterDuringTick(t *testing.T) {
	c := cache.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				id, err := c.Register(newTestItem(time.Duration(n%3) * time.Millisecond))
				if err != nil {
					t.Errorf("register: %v", err)
					return
				}
				if n%5 == 0 {
					c.Dispose(id)
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := 0; n < 50; n++ {
			c.Tick(ctx)
		}
	}()

	wg.Wait()
	<-done
	time.Sleep(5 * time.Millisecond)
	c.Tick(ctx)

	if c.Len() != 0 {
		t.Errorf("expected all short-lived items to be gone, %d remain", c.Len())
	}
}

func TestObject(t *testing.T) {
	c := cache.New()
	obj := cache.NewObject("payload", time.Minute)
	id, _ := c.Register(obj)

	got, ok := c.Get(id)
	if !ok {
		t.Fatal("object not registered")
	}
	if v := got.(*cache.Object[string]).Get(); v != "payload" {
		t.Errorf("expected payload, got %q", v)
	}
}

func TestMetricsInstrumentation(t *testing.T) {
	m := observability.NewMetrics("test", prometheus.NewRegistry())
	c := cache.New(cache.WithMetrics(m))

	keep := newTestItem(time.Hour)
	keep.tickErr = stderrors.New("fail")
	c.Register(keep)
	c.Register(newTestItem(0))
	manual, _ := c.Register(newTestItem(time.Hour))

	c.Dispose(manual)
	c.Tick(context.Background())

	if got := testutil.ToFloat64(m.CacheItems); got != 1 {
		t.Errorf("expected gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheDisposals.WithLabelValues("manual")); got != 1 {
		t.Errorf("expected 1 manual disposal, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheDisposals.WithLabelValues("expired")); got != 1 {
		t.Errorf("expected 1 expired disposal, got %v", got)
	}
	if got := testutil.ToFloat64(m.Exceptions.WithLabelValues(observability.SourceTick)); got != 1 {
		t.Errorf("expected 1 tick exception, got %v", got)
	}
}

func TestDisposeReasonString(t *testing.T) {
	if cache.DisposeManual.String() != "manual" || cache.DisposeExpired.String() != "expired" {
		t.Error("unexpected reason names")
	}
}
