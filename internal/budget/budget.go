// Package budget implements the cooperative wall-clock deadline that bounds a
// single detection.
//
// A Budget is created once at the start of an invocation and passed by
// pointer through every stage. Loops poll Over at fine granularity and stop
// with whatever partial result they have. Exhaustion is a value, never an
// error or panic, so callers can tell it apart from hard failures.
package budget

import (
	"context"
	"sync/atomic"
	"time"
)

// Budget is a deadline plus an optional parent context. It is safe for
// concurrent use; the exhausted flag is sticky once observed.
type Budget struct {
	ctx       context.Context
	deadline  time.Time
	exhausted atomic.Bool
	now       func() time.Time
}

// New starts a budget of length d from now. A zero or negative d yields a
// budget that is already over.
func New(ctx context.Context, d time.Duration) *Budget {
	return newWithClock(ctx, d, time.Now)
}

func newWithClock(ctx context.Context, d time.Duration, now func() time.Time) *Budget {
	if ctx == nil {
		ctx = context.Background()
	}
	if d < 0 {
		d = 0
	}
	return &Budget{ctx: ctx, deadline: now().Add(d), now: now}
}

// Over reports whether the deadline has passed or the parent context ended.
func (b *Budget) Over() bool {
	if b == nil {
		return false
	}
	if b.exhausted.Load() {
		return true
	}
	if b.ctx.Err() != nil || !b.now().Before(b.deadline) {
		b.exhausted.Store(true)
		return true
	}
	return false
}

// Remaining returns the time left, or zero when over.
func (b *Budget) Remaining() time.Duration {
	if b == nil {
		return time.Duration(1<<63 - 1)
	}
	if b.Over() {
		return 0
	}
	return b.deadline.Sub(b.now())
}

// Allows reports whether at least floor remains. Expensive optional stages
// use it to decide whether to start at all.
func (b *Budget) Allows(floor time.Duration) bool {
	return b.Remaining() > floor
}

// Exhausted reports whether any caller has observed the deadline passing.
// Unlike Over it does not consult the clock, so it answers "did we run out
// during the pass" rather than "are we out now".
func (b *Budget) Exhausted() bool {
	return b != nil && b.exhausted.Load()
}

// Bound derives a context from ctx that ends at the budget deadline, for
// blocking collaborators that only understand cancellation.
func (b *Budget) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b == nil {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, b.deadline)
}
