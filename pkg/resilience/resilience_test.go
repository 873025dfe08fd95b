package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSink = errors.New("sink unavailable")

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errSink
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausted(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		return errSink
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errSink)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		return Permanent(errSink)
	})
	require.ErrorIs(t, err, errSink)
	assert.Equal(t, 1, calls)
	assert.NoError(t, Permanent(nil))
}

func TestRetryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Retry(ctx, "op", fastPolicy(), func(ctx context.Context) error {
		calls++
		return errSink
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryAttemptTimeout(t *testing.T) {
	policy := fastPolicy()
	policy.MaxAttempts = 1
	policy.AttemptTimeout = 5 * time.Millisecond
	err := Retry(context.Background(), "op", policy, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffCapped(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	assert.Equal(t, 3*time.Second, Backoff(4, p))
	d := Backoff(1, p)
	assert.InDelta(t, float64(time.Second), float64(d), float64(150*time.Millisecond))
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker("status", 2, time.Minute)
	cb.now = func() time.Time { return now }

	fail := func() error { return errSink }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Execute(fail), errSink)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(fail), errSink)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), cb.Rejected())

	now = now.Add(time.Minute)
	assert.ErrorIs(t, cb.Execute(fail), errSink)
	assert.Equal(t, StateOpen, cb.State(), "failed probe re-opens")

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
