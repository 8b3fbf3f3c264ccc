// Package retry runs a single operation repeatedly with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond

	maxShift = 62
)

// Policy bounds retries by attempt count only. There is no jitter and no
// overall deadline; the wait after failed attempt i (0-indexed) is
// BaseDelay * 2^i.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep suspends the caller between attempts. Nil uses a timer that
	// returns early with ctx.Err() when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	Log zerolog.Logger
}

// WithDefaults fills unset fields. A zero BaseDelay is unset; configuration
// rejects an explicit zero before it reaches a Policy.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.BaseDelay == 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}

// Delay returns the wait that follows failed attempt i.
func (p Policy) Delay(i int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if i < 0 {
		i = 0
	} else if i > maxShift {
		i = maxShift
	}
	mult := int64(1) << i
	if int64(p.BaseDelay) > math.MaxInt64/mult {
		return time.Duration(math.MaxInt64)
	}
	return p.BaseDelay * time.Duration(mult)
}

// Do calls fn up to MaxAttempts times and returns the first success. When
// every attempt fails the final attempt's error is returned unchanged. If the
// wait between attempts is interrupted by ctx, the sleep error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.WithDefaults()

	var zero T
	for i := 0; i < p.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		p.Log.Debug().Int("attempt", i+1).Msg("retry attempt")

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if i == p.MaxAttempts-1 {
			p.Log.Debug().Int("attempts", p.MaxAttempts).Err(err).Msg("all retry attempts failed")
			return zero, err
		}

		wait := p.Delay(i)
		p.Log.Debug().Int("attempt", i+1).Dur("wait", wait).Err(err).Msg("attempt failed, backing off")
		if serr := p.Sleep(ctx, wait); serr != nil {
			return zero, serr
		}
	}
	return zero, nil
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
