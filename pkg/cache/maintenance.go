// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"context"
	"time"

	"github.com/watercache/watercache/pkg/errors"
	"github.com/watercache/watercache/pkg/observability"
)

// Start ticks the cache every interval on a goroutine owned by the cache,
// without supervision. Call Stop to end it. A previous loop still finishing
// its pass is joined first, so passes never overlap.
func (c *Cache) Start(interval time.Duration) error {
	if interval <= 0 {
		return errors.ValidationError("start cache loop", ErrInvalidPeriod)
	}

	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.cancel != nil {
		return errors.IllegalStateError("start cache loop", ErrAlreadyRunning)
	}
	if c.done != nil {
		// A stopped loop may still be mid-pass. The loop never takes loopMu.
		<-c.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done

	go c.loop(ctx, interval, done)
	c.logger.Debug("cache loop started", observability.Duration("interval", interval))
	return nil
}

// Stop ends the standalone loop. It is a no-op if the loop is not running
// and does not wait for an in-flight pass; use Wait for that.
func (c *Cache) Stop() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
}

// Wait blocks until the most recently started loop has exited.
func (c *Cache) Wait() {
	c.loopMu.Lock()
	done := c.done
	c.loopMu.Unlock()

	if done != nil {
		<-done
	}
}

// Running reports whether the standalone loop is active.
func (c *Cache) Running() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.cancel != nil
}

// loop ticks, then sleeps for whatever remains of the interval.
func (c *Cache) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		start := time.Now()
		c.Tick(ctx)

		wait := interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			c.logger.Debug("cache loop stopped")
			return
		case <-timer.C:
		}
	}
}
