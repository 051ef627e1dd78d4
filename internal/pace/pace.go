// Package pace spaces calls to external providers by a fixed minimum delay.
package pace

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/kwpulse/errors"
)

// Pacer allows one call per delay. The first call is never delayed.
// A zero delay disables pacing entirely.
type Pacer struct {
	limiter *rate.Limiter
	delay   atomic.Int64
}

// New creates a Pacer with the given minimum spacing between calls.
func New(delay time.Duration) *Pacer {
	p := &Pacer{limiter: rate.NewLimiter(limitFor(delay), 1)}
	p.delay.Store(int64(delay))
	return p
}

// Wait blocks until the next call may proceed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "pacer wait")
	}
	return nil
}

// SetDelay changes the spacing. Used when configuration is hot-reloaded.
func (p *Pacer) SetDelay(delay time.Duration) {
	if p == nil {
		return
	}
	p.delay.Store(int64(delay))
	p.limiter.SetLimit(limitFor(delay))
}

// Delay returns the current spacing.
func (p *Pacer) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return time.Duration(p.delay.Load())
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
