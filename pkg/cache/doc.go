// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package cache implements an in-process cache of self-expiring items.
//
// Every registered item carries its own lifetime and lifecycle hooks. One
// maintenance pass (Tick) visits each item once: expired items are offered
// for disposal, live items are ticked. A failure in one item is reported to
// the cache Listener and never stops the pass for the remaining items.
//
// The cache can drive itself with Start, or be supervised by a
// watchdog.Watchdog, in which case Setup stops the standalone loop so ticks
// only ever run on the watchdog's worker.
package cache
