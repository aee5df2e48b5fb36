// Copyright 2026 Watercache Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package watchdog drives a Tickable through a supervised tick loop.
//
// A Watchdog owns two goroutines per run: a supervisor and a dedicated
// worker. The supervisor wakes the worker for one Tick, waits up to the
// maximum tick time, reports a stall to its Listener when the deadline is
// exceeded, waits the stalled tick out, and sleeps for whatever remains of
// the tick interval. Cycles that overrun the interval are reported as
// skipped ticks. At most one tick is ever in flight.
//
// A stalled tick is never killed. The context passed to Tick is cancelled
// by Stop and by cancellation of the context given to Start, so ticks that
// honour it end promptly.
package watchdog
