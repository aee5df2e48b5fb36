package watchdog

import "context"

// Tickable is periodic work driven by a Watchdog.
type Tickable interface {
	// Setup is called once per run before the first tick. It resets any
	// run state left from earlier use.
	Setup()
	// Tick performs one unit of work. It is only ever called from the
	// watchdog's worker goroutine and should return once ctx is done.
	Tick(ctx context.Context)
}

// TickFunc adapts a function to Tickable with a no-op Setup.
type TickFunc func(ctx context.Context)

// Setup does nothing.
func (f TickFunc) Setup() {}

// Tick calls f(ctx).
func (f TickFunc) Tick(ctx context.Context) { f(ctx) }
