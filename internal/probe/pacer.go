package probe

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer throttles probe launches to at most one per interval. It limits the
// launch rate only; how many probes are in flight is not bounded.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer with the given minimum inter-launch delay. A zero
// or negative interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next launch is permitted. The first call returns
// immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
