// Package retry provides an injectable retry policy used by the batch
// scanner, the stream monitor and the alert dispatcher. Substituting a
// zero-delay policy keeps tests fast.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded exponential backoff schedule. MaxAttempts
// counts the initial call, so MaxAttempts == 1 means no retries. A
// Multiplier of 1 gives a fixed delay.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Scanner is the per-subreddit policy of the batch scanner.
func Scanner() Policy {
	return Policy{MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 30 * time.Second, Multiplier: 2}
}

// Stream is the policy applied to a broken subreddit stream before the
// task goes back to Starting: 5s, 10s, 20s, 40s, 60s.
func Stream() Policy {
	return Policy{MaxAttempts: 5, InitialInterval: 5 * time.Second, MaxInterval: 60 * time.Second, Multiplier: 2}
}

// Dispatcher is the alert delivery policy: three attempts with a fixed
// 5s pause between them.
func Dispatcher() Policy {
	return Policy{MaxAttempts: 3, InitialInterval: 5 * time.Second, MaxInterval: 5 * time.Second, Multiplier: 1}
}

// None retries nothing and sleeps never. For tests.
func None() Policy {
	return Policy{MaxAttempts: 1}
}

// Immediate keeps the attempt schedule of p but drops all delays.
// For tests.
func Immediate(p Policy) Policy {
	return Policy{MaxAttempts: p.MaxAttempts}
}

// Do runs op, retrying on errors for which retryable returns true,
// until the policy's attempts are exhausted or ctx is cancelled. The
// last error is returned. A nil retryable treats every error as
// retryable.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = 0
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	wrapped := func() error {
		err := op()
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	// backoff.Retry unwraps Permanent errors before returning them.
	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
