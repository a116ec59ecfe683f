package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type retryAfterErr struct {
	d  time.Duration
	ok bool
}

func (e *retryAfterErr) Error() string                     { return "throttled" }
func (e *retryAfterErr) RetryAfter() (time.Duration, bool) { return e.d, e.ok }

// recordingPolicy 记录每次等待时长，不真正 sleep
func recordingPolicy(maxAttempts int, slept *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = maxAttempts
	p.Rand = func() float64 { return 0 }
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	var slept []time.Duration
	calls := 0

	err := Retry(context.Background(), recordingPolicy(5, &slept), func(attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	var slept []time.Duration
	calls := 0
	cause := errors.New("still failing")

	err := Retry(context.Background(), recordingPolicy(5, &slept), func(int) error {
		calls++
		return cause
	})

	assert.Equal(t, 5, calls)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, cause)
	assert.Len(t, slept, 4)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	var slept []time.Duration
	policy := recordingPolicy(5, &slept)
	fatal := errors.New("fatal")
	policy.RetryableErrors = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	err := Retry(context.Background(), policy, func(int) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, fatal, err)
	assert.Empty(t, slept)
}

func TestRetry_HonorsRetryAfter(t *testing.T) {
	var slept []time.Duration
	calls := 0

	err := Retry(context.Background(), recordingPolicy(3, &slept), func(int) error {
		calls++
		if calls == 1 {
			return &retryAfterErr{d: 7 * time.Second, ok: true}
		}
		if calls == 2 {
			return &retryAfterErr{ok: false}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second, 2 * time.Second}, slept)
}

func TestRetry_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := DefaultRetryPolicy()
	policy.BaseDelay = time.Hour

	calls := 0
	err := Retry(ctx, policy, func(int) error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNextDelay_BackoffIsCapped(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Rand = func() float64 { return 0 }

	expected := map[int]time.Duration{
		1: 1 * time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		5: 16 * time.Second,
		6: 16 * time.Second,
		9: 16 * time.Second,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, p.NextDelay(attempt, errors.New("x")), "attempt %d", attempt)
	}
}

func TestNextDelay_JitterBounded(t *testing.T) {
	p := DefaultRetryPolicy()
	p.Rand = func() float64 { return 0.999 }

	d := p.NextDelay(1, errors.New("x"))
	assert.GreaterOrEqual(t, d, time.Second)
	assert.Less(t, d, time.Second+500*time.Millisecond)
}
