package infra

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const defaultJitter = 0.2

// Backoff hands out exponentially growing delays, each spread by a proportional jitter.
// A delay is never shorter than the floor; the base delay stops growing at the ceiling.
type Backoff struct {
	mu       sync.Mutex
	floor    time.Duration
	ceiling  time.Duration
	factor   float64
	jitter   float64
	random   func() float64
	base     time.Duration
	attempts int
}

type BackoffOption func(*Backoff)

// WithJitter spreads every delay by +/- fraction of its base
func WithJitter(fraction float64) BackoffOption {
	return func(b *Backoff) { b.jitter = fraction }
}

// WithRandom replaces the [0,1) source used for jitter
func WithRandom(random func() float64) BackoffOption {
	return func(b *Backoff) { b.random = random }
}

func NewBackoff(floor, ceiling time.Duration, factor float64, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		floor:   floor,
		ceiling: ceiling,
		factor:  factor,
		jitter:  defaultJitter,
		random:  rand.Float64,
		base:    floor,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Next returns the delay before the upcoming attempt and counts that attempt
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts++
	spread := (b.random()*2 - 1) * b.jitter
	wait := max(b.base+time.Duration(spread*float64(b.base)), b.floor)
	b.base = min(time.Duration(float64(b.base)*b.factor), b.ceiling)
	return wait
}

// NotBefore returns the earliest time the upcoming attempt may start, counting from now
func (b *Backoff) NotBefore(now time.Time) time.Time {
	return now.Add(b.Next())
}

// Wait sleeps for the next delay. It returns false if ctx ends first
func (b *Backoff) Wait(ctx context.Context) (time.Duration, bool) {
	wait := b.Next()
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return wait, false
	case <-timer.C:
		return wait, true
	}
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = b.floor
	b.attempts = 0
}

func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
