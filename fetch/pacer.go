package fetch

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces the inter-fetch politeness delay inside a single
// rebuild. A burst of one means the first Wait never blocks -- there is
// no delay before the first fetch -- and every subsequent Wait blocks
// until rate_limit_ms has elapsed since the previous one, exactly as
// required of the coordinator's fetch loop.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer for the given inter-fetch delay. A zero or
// negative delay disables pacing entirely.
func NewPacer(rateLimitMs int) *Pacer {
	if rateLimitMs <= 0 {
		return &Pacer{}
	}
	interval := time.Duration(rateLimitMs) * time.Millisecond
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next fetch is allowed to proceed.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
