package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/watercache/watercache/pkg/cache"
	"github.com/watercache/watercache/pkg/observability"
	"github.com/watercache/watercache/pkg/scheduler"
)

const (
	demoTickInterval = 50 * time.Millisecond
	demoMaxTickTime  = 500 * time.Millisecond
	demoStep         = 100 * time.Millisecond
	demoRetireAfter  = 10 * time.Second
)

// slowItem sleeps a little longer on every tick: 0, 100ms, 200ms and so on.
type slowItem struct {
	cache.Base
	logger observability.Logger
	ticks  atomic.Int64
}

func (s *slowItem) Tick(ctx context.Context) error {
	d := time.Duration(s.ticks.Add(1)-1) * demoStep

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	return nil
}

func (s *slowItem) OnDispose(reason cache.DisposeReason) bool {
	s.logger.Info("demo item disposed",
		observability.String("reason", reason.String()),
		observability.Int64("ticks", s.ticks.Load()))
	return true
}

// registerDemo fills the cache with the demo items and schedules the slow
// item's retirement so the run settles back to a healthy cadence.
func registerDemo(c *cache.Cache, s *scheduler.Scheduler, logger observability.Logger) error {
	slow := &slowItem{Base: cache.NewBase(cache.Forever), logger: logger}
	if _, err := c.Register(slow); err != nil {
		return err
	}

	greeting := cache.NewObject("hello", 3*time.Second)
	if _, err := c.Register(greeting); err != nil {
		return err
	}

	_, err := s.RunAfter(func() {
		if c.DisposeItem(slow) {
			logger.Info("demo item retired", observability.Duration("after", demoRetireAfter))
		}
	}, demoRetireAfter)
	return err
}
