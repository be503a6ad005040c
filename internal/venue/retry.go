package venue

import (
	"context"
	"math/rand"
	"time"

	"github.com/faridmah/arbot/internal/domain"
)

// RetryPolicy bounds the retry loop applied to transient venue failures.
// Delays grow exponentially from BaseDelay up to MaxDelay with full jitter.
type RetryPolicy struct {
	MaxAttempts int // total attempts including the first
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the production defaults: three attempts,
// 500ms base, 5s ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// delay returns the jittered backoff before attempt n (0-based, so the
// first retry waits around BaseDelay).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if d <= 0 {
		return time.Millisecond
	}
	// Full jitter: uniform in (0, d].
	return time.Duration(rand.Int63n(int64(d))) + 1
}

// retryable reports whether err is worth another attempt: transient
// transport failures and rate limits only. Auth errors, invalid input and
// business rejections surface immediately.
func retryable(err error) bool {
	if ve, ok := domain.AsVenueError(err); ok {
		return ve.Retryable()
	}
	return false
}

// withRetry runs op under the policy, sleeping the jittered backoff between
// attempts and aborting early on context cancellation.
func withRetry(ctx context.Context, p RetryPolicy, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt - 1)):
			}
		}
		if err = op(); err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}
