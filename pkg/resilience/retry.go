package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff retries an operation with exponentially growing, jittered delays.
// Zero fields take the defaults of DefaultBackoff.
type Backoff struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultBackoff suits short broker or cache outages.
var DefaultBackoff = Backoff{
	MaxAttempts:    3,
	InitialDelay:   100 * time.Millisecond,
	MaxDelay:       5 * time.Second,
	Multiplier:     2.0,
	JitterFraction: 0.1,
}

func (b Backoff) withDefaults() Backoff {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultBackoff.MaxAttempts
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = DefaultBackoff.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = DefaultBackoff.MaxDelay
	}
	if b.Multiplier <= 0 {
		b.Multiplier = DefaultBackoff.Multiplier
	}
	if b.JitterFraction <= 0 {
		b.JitterFraction = DefaultBackoff.JitterFraction
	}
	return b
}

// Retry runs fn until it succeeds, MaxAttempts is reached or ctx is done.
// Errors for which permanent returns true stop the loop at once.
func (b Backoff) Retry(ctx context.Context, name string, permanent func(error) bool, fn func(ctx context.Context) error) error {
	b = b.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == b.MaxAttempts || (permanent != nil && permanent(err)) {
			break
		}
		delay := b.delay(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", b.MaxAttempts,
			"next_delay", delay,
			"error", err,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: retry aborted: %w", name, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (b Backoff) delay(attempt int) time.Duration {
	d := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt-1))
	d += d * b.JitterFraction * (2*rand.Float64() - 1)
	if d > float64(b.MaxDelay) {
		d = float64(b.MaxDelay)
	}
	if d <= 0 {
		d = float64(b.InitialDelay)
	}
	return time.Duration(d)
}
