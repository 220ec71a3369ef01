// Package retry provides the shared retry policy for provider calls and
// token issuance: bounded attempts, exponential backoff, jitter.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy configures bounded retries with exponential backoff and jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Default is the policy used when none is configured.
var Default = Policy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second}

// WithDefaults fills zero-valued fields from Default, so a partially
// configured policy still behaves sensibly.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = Default.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = Default.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = Default.MaxDelay
	}
	return p
}

// Backoff returns the delay before the given attempt (0-based), with up to
// 25% random jitter added.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

// Do runs fn up to MaxAttempts times, sleeping Backoff between attempts.
// It returns the last error when all attempts fail, or ctx.Err() if the
// context is cancelled while waiting. Never retries indefinitely.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff(i)):
		}
	}
	return err
}
