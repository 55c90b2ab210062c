package application

import (
	"context"
	"math/rand/v2"
	"time"
)

// Default backoff configuration
const (
	defaultMaxRetries  = 4
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 30 * time.Second
)

// Backoff is exponential backoff with full jitter: the n-th retry waits a uniformly random
// duration in [0, min(Max, Base*2^n)].
type Backoff struct {
	MaxRetries int
	Base       time.Duration
	Max        time.Duration

	// jitter picks a duration in [0, ceiling]; replaced in tests
	jitter func(ceiling time.Duration) time.Duration
}

// NewBackoff creates a backoff, falling back to the defaults for non-positive values
func NewBackoff(maxRetries int, base, maxDelay time.Duration) Backoff {
	b := Backoff{
		MaxRetries: defaultMaxRetries,
		Base:       defaultBackoffBase,
		Max:        defaultBackoffMax,
		jitter:     fullJitter,
	}
	if maxRetries >= 0 {
		b.MaxRetries = maxRetries
	}
	if base > 0 {
		b.Base = base
	}
	if maxDelay > 0 {
		b.Max = maxDelay
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	return b
}

// Delay returns the wait before retry number attempt (0-based)
func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Base
	for i := 0; i < attempt && ceiling < b.Max; i++ {
		ceiling *= 2
	}
	if ceiling > b.Max {
		ceiling = b.Max
	}
	jitter := b.jitter
	if jitter == nil {
		jitter = fullJitter
	}
	return jitter(ceiling)
}

func fullJitter(ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
