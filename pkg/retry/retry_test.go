package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	err := p.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	attempts := 0
	sentinel := errors.New("still broken")
	err := p.Do(context.Background(), func(context.Context) error {
		attempts++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts, "never retries indefinitely")
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	p := Policy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	attempts := 0
	_ = p.Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("x")
	})
	assert.Equal(t, 1, attempts)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := p.Do(ctx, func(context.Context) error {
		attempts++
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestWithDefaults(t *testing.T) {
	assert.Equal(t, Default, Policy{}.WithDefaults(), "all-zero policy becomes the default")

	p := Policy{MaxAttempts: 7}.WithDefaults()
	assert.Equal(t, 7, p.MaxAttempts, "configured fields are kept")
	assert.Equal(t, Default.BaseDelay, p.BaseDelay)
	assert.Equal(t, Default.MaxDelay, p.MaxDelay)

	full := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, full, full.WithDefaults())
}

func TestBackoffBounded(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	for attempt := 0; attempt < 20; attempt++ {
		d := p.Backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		// jitter adds at most a quarter on top of the cap
		assert.LessOrEqual(t, d, p.MaxDelay+p.MaxDelay/4)
	}
}

func TestBackoffGrows(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 8 * time.Millisecond, MaxDelay: time.Second}
	assert.GreaterOrEqual(t, p.Backoff(2), p.Backoff(0))
}
