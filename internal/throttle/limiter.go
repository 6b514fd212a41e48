// Package throttle bounds sustained byte throughput with a token bucket.
package throttle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limiter grants permission to move bytes at up to a configured number of
// bytes per second, measured over a sliding one-second window. A single
// Limiter is shared by every relay direction of every connection, so the
// ceiling bounds the aggregate throughput of the simulated link.
type Limiter struct {
	// nil means unlimited: every Acquire proceeds immediately.
	lim *rate.Limiter
}

// New creates a limiter with the given ceiling in bytes per second.
// A ceiling of zero or less means unlimited.
func New(bytesPerSec int) *Limiter {
	if bytesPerSec <= 0 {
		return &Limiter{}
	}
	// Burst of one second's worth of bytes: a fresh limiter may release up
	// to one window of budget at once, then refills at the ceiling rate.
	return &Limiter{lim: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)}
}

// Unlimited reports whether Acquire ever blocks.
func (l *Limiter) Unlimited() bool { return l.lim == nil }

// Burst returns the largest grant a single wait covers, or 0 when unlimited.
// Callers use it to cap chunk sizes so no single Acquire waits much longer
// than one window.
func (l *Limiter) Burst() int {
	if l.lim == nil {
		return 0
	}
	return l.lim.Burst()
}

// Acquire blocks until n bytes may be forwarded, or until ctx is done.
// Requests larger than the burst are split and acquired piecewise, so an
// oversized request waits proportionally longer but never fails. Safe for
// concurrent callers; budget debits are serialized by the underlying
// limiter, so grants summed across callers stay within the ceiling.
//
// A negative n is a programming error and panics.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if n < 0 {
		panic(fmt.Sprintf("throttle: negative byte count %d", n))
	}
	if l.lim == nil || n == 0 {
		return nil
	}
	for n > 0 {
		step := n
		if b := l.lim.Burst(); step > b {
			step = b
		}
		if err := l.lim.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
