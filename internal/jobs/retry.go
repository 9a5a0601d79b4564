package jobs

import (
	"time"

	"github.com/ajayykmr/sms-gateway/internal/errs"
)

// Default retry settings for deferred jobs.
const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 30 * time.Second
)

// DefaultBackoff is the wait after each failed attempt.
var DefaultBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

// RetryPolicy bounds how a failing job is retried.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     []time.Duration
	// Timeout caps a single attempt.
	Timeout time.Duration
}

// DefaultRetryPolicy returns 3 attempts of at most 30s each with 10s, 30s,
// 60s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     append([]time.Duration(nil), DefaultBackoff...),
		Timeout:     DefaultTimeout,
	}
}

// AttemptTimeout returns Timeout, or DefaultTimeout when unset.
func (p RetryPolicy) AttemptTimeout() time.Duration {
	if p.Timeout <= 0 {
		return DefaultTimeout
	}
	return p.Timeout
}

// Delay returns the wait after failed attempt (1-based). Attempts past the
// end of the schedule reuse its last entry.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 || attempt <= 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

// ShouldRetry reports whether another attempt follows a failure of attempt
// with err. Only provider and network failures are retried.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	return attempt < max && errs.Retryable(err)
}
