package session

import "time"

// RetryPolicy bounds re-verification after transient failures.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff[i] is the wait after the (i+1)th failure; the last value
	// repeats for later attempts.
	Backoff []time.Duration
}

// DefaultRetryPolicy retries every 5 seconds, ten times.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10, Backoff: []time.Duration{5 * time.Second}}
}

// Delay returns how long to wait after failed attempt number attempt
// (1-based) and whether another attempt is allowed at all.
func (p RetryPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt >= p.MaxAttempts || len(p.Backoff) == 0 {
		return 0, false
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx], true
}
