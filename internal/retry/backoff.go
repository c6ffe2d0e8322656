package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/vsayer/materialize/pkg/catalog"
)

// Backoff is exponential backoff with symmetric jitter.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	attempts   int
	jitter     float64
	random     func() float64
}

// Option configures a Backoff.
type Option func(*Backoff)

// WithInitialDelay sets the wait before the first retry.
func WithInitialDelay(d time.Duration) Option { return func(b *Backoff) { b.initial = d } }

// WithMaxDelay caps the wait between retries.
func WithMaxDelay(d time.Duration) Option { return func(b *Backoff) { b.max = d } }

// WithMultiplier sets the growth factor between retries.
func WithMultiplier(m float64) Option { return func(b *Backoff) { b.multiplier = m } }

// WithJitter spreads each delay by up to ±j of its value. random must return
// values in [0, 1); nil uses math/rand.
func WithJitter(j float64, random func() float64) Option {
	return func(b *Backoff) {
		b.jitter = j
		b.random = random
	}
}

// NewBackoff returns a strategy allowing attempts retries (-1 for unlimited).
func NewBackoff(attempts int, opts ...Option) *Backoff {
	b := &Backoff{
		initial:    catalog.DefaultRetryInitialDelay,
		max:        catalog.DefaultRetryMaxDelay,
		multiplier: 2,
		attempts:   attempts,
		jitter:     0.1,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.random == nil {
		b.random = rand.Float64
	}
	return b
}

// NextDelay implements catalog.BackoffStrategy.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	d := float64(b.initial) * math.Pow(b.multiplier, float64(attempt))
	d = math.Min(d, float64(b.max))
	if b.jitter > 0 {
		d *= 1 + b.jitter*(2*b.random()-1)
	}
	return time.Duration(d)
}

// MaxAttempts implements catalog.BackoffStrategy.
func (b *Backoff) MaxAttempts() int { return b.attempts }
