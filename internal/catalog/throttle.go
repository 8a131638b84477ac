package catalog

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"PaperTriage/internal/metrics"
)

// Gate admits catalog requests. One Gate is shared by every caller in the
// process so total cadence never exceeds its interval.
type Gate interface {
	Wait(ctx context.Context) error
}

// IntervalGate allows one request per interval. Waiters are admitted in the
// order they called Wait because each call reserves the next free slot.
type IntervalGate struct {
	limiter *rate.Limiter
}

// NewIntervalGate builds a gate with burst 1. A non-positive interval disables throttling.
func NewIntervalGate(interval time.Duration) *IntervalGate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &IntervalGate{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the caller's slot comes up or ctx ends.
func (g *IntervalGate) Wait(ctx context.Context) error {
	start := time.Now()
	err := g.limiter.Wait(ctx)
	metrics.RecordThrottleWait(time.Since(start).Seconds())
	return err
}

// NopGate never blocks.
type NopGate struct{}

// Wait returns immediately unless ctx is already done.
func (NopGate) Wait(ctx context.Context) error {
	return ctx.Err()
}
