package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fast() Backoff {
	return Backoff{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fast().Retry(context.Background(), "publish", nil, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := fast().Retry(context.Background(), "publish", nil, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	permanent := func(err error) bool { return errors.Is(err, errBoom) }
	err := fast().Retry(context.Background(), "publish", permanent, func(context.Context) error {
		calls++
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := Backoff{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}
	err := b.Retry(ctx, "publish", nil, func(context.Context) error {
		cancel()
		return errBoom
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 3 * time.Second}.withDefaults()
	assert.LessOrEqual(t, b.delay(10), 3*time.Second)
	assert.Greater(t, b.delay(1), time.Duration(0))
}

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("redis", 2, time.Minute)
	b.now = func() time.Time { return now }
	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	called := false
	assert.ErrorIs(t, b.Do(func() error { called = true; return nil }), ErrOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, b.Do(fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(time.Minute)
	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State())
}
