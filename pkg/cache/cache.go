// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dolthub/swiss"

	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
)

const defaultCapacity = 64

// Cache maps ids to self-expiring items.
//
// Register, lookups and Dispose are safe to call from any goroutine, also
// while a tick pass is running. Each pass iterates a snapshot of the table.
type Cache struct {
	mu     sync.RWMutex
	items  *swiss.Map[ID, Cachable]
	nextID atomic.Int64

	listenerMu sync.RWMutex
	listener   Listener

	logger  observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	// Standalone loop ownership.
	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithListener sets the tick failure listener.
func WithListener(l Listener) Option {
	return func(c *Cache) {
		if l != nil {
			c.listener = l
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithClock overrides the time source used to decide expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		items:    swiss.NewMap[ID, Cachable](defaultCapacity),
		listener: NopListener{},
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetListener replaces the tick failure listener. A nil listener restores the no-op default.
func (c *Cache) SetListener(l Listener) {
	if l == nil {
		l = NopListener{}
	}
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
}

// Register assigns the next id to item, inserts it and invokes its OnRegister hook.
func (c *Cache) Register(item Cachable) (ID, error) {
	if item == nil {
		return 0, errors.ValidationError("register", ErrNilItem)
	}

	id := ID(c.nextID.Add(1))
	item.SetID(id)

	c.mu.Lock()
	c.items.Put(id, item)
	n := c.items.Count()
	c.mu.Unlock()

	c.setGauge(n)
	item.OnRegister(c)
	return id, nil
}

// Get returns the item registered under id.
func (c *Cache) Get(id ID) (Cachable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.Get(id)
}

// Has reports whether id is registered.
func (c *Cache) Has(id ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.Has(id)
}

// HasItem reports whether item is registered.
func (c *Cache) HasItem(item Cachable) bool {
	if item == nil {
		return false
	}
	return c.Has(item.ID())
}

// Len returns the number of registered items.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items.Count()
}

// Dispose removes the item registered under id and invokes its OnDispose
// hook with DisposeManual. It returns false, without invoking any hook, if
// id is not registered. An item whose expiry hook is running counts as
// unregistered until the hook vetoes.
func (c *Cache) Dispose(id ID) bool {
	c.mu.Lock()
	item, ok := c.items.Get(id)
	if ok {
		c.items.Delete(id)
	}
	n := c.items.Count()
	c.mu.Unlock()

	if !ok {
		return false
	}
	c.setGauge(n)
	c.recordDisposal(DisposeManual)
	item.OnDispose(DisposeManual)
	return true
}

// DisposeItem removes item. See Dispose.
func (c *Cache) DisposeItem(item Cachable) bool {
	if item == nil {
		return false
	}
	return c.Dispose(item.ID())
}

// Setup prepares the cache to be driven by a supervisor: the standalone
// loop, if running, is stopped and its in-flight pass is waited out.
func (c *Cache) Setup() {
	c.Stop()
	c.Wait()
}

type entry struct {
	id   ID
	item Cachable
}

func (c *Cache) snapshot() []entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entry, 0, c.items.Count())
	c.items.Iter(func(id ID, item Cachable) bool {
		out = append(out, entry{id: id, item: item})
		return false
	})
	return out
}

// Tick runs one maintenance pass. Expired items whose OnDispose returns
// true are removed; live items are ticked. Failures are reported per item
// and the pass continues. The pass ends early if ctx is cancelled.
func (c *Cache) Tick(ctx context.Context) {
	for _, e := range c.snapshot() {
		if ctx.Err() != nil {
			return
		}
		c.visit(ctx, e)
	}
	c.setGauge(c.Len())
}

func (c *Cache) visit(ctx context.Context, e entry) {
	defer func() {
		if r := recover(); r != nil {
			c.reportTickError(e.id, errors.Recovered(r))
		}
	}()

	if expired(e.item, c.now()) {
		c.expire(e)
		return
	}

	if err := e.item.Tick(ctx); err != nil {
		c.reportTickError(e.id, err)
	}
}

// expire claims the item by removing it before OnDispose runs, so a racing
// Dispose finds nothing and the item gets exactly one final hook. A veto
// puts the item back for the next pass.
func (c *Cache) expire(e entry) {
	c.mu.Lock()
	claimed := c.items.Delete(e.id)
	c.mu.Unlock()
	if !claimed {
		return
	}

	keep := true
	defer func() {
		if keep {
			c.mu.Lock()
			c.items.Put(e.id, e.item)
			c.mu.Unlock()
		}
	}()

	if e.item.OnDispose(DisposeExpired) {
		keep = false
		c.recordDisposal(DisposeExpired)
	}
}

func (c *Cache) reportTickError(id ID, cause error) {
	err := errors.TickError(fmt.Sprintf("item %d failed during tick", id), cause).
		WithContext("item_id", int64(id))

	c.logger.Debug("tick exception", observability.Int64("item_id", int64(id)), observability.Err(cause))
	if c.metrics != nil {
		c.metrics.RecordException(observability.SourceTick)
	}

	c.listenerMu.RLock()
	l := c.listener
	c.listenerMu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			lerr := errors.ListenerError("cache listener panicked", errors.Recovered(r))
			c.logger.Error("listener produced an exception", observability.Err(lerr))
			if c.metrics != nil {
				c.metrics.RecordException(observability.SourceListener)
			}
		}
	}()
	l.OnTickException(err)
}

func (c *Cache) setGauge(n int) {
	if c.metrics != nil {
		c.metrics.SetCacheItems(n)
	}
}

func (c *Cache) recordDisposal(reason DisposeReason) {
	if c.metrics != nil {
		c.metrics.RecordDisposal(reason.String())
	}
}
