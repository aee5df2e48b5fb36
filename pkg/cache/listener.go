// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

package cache

import (
	"github.com/watercache/watercache/pkg/observability"
)

// Listener observes failures contained by a tick pass.
type Listener interface {
	// OnTickException receives one wrapped error per failing item.
	OnTickException(err error)
}

// NopListener ignores every event.
type NopListener struct{}

// OnTickException does nothing.
func (NopListener) OnTickException(error) {}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(err error)

// OnTickException calls f(err).
func (f ListenerFunc) OnTickException(err error) { f(err) }

// LogListener writes tick failures to a logger.
type LogListener struct {
	Logger observability.Logger
}

// OnTickException logs err at warn level.
func (l LogListener) OnTickException(err error) {
	if l.Logger == nil {
		return
	}
	l.Logger.Warn("cache item tick failed", observability.Err(err))
}
