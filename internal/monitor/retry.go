package monitor

import (
	"context"
	"time"
)

// RetryPolicy bounds reconnection and RPC retry behavior. It is injected
// into the Monitor so resilience tuning stays out of the monitoring logic.
// Exhausting MaxAttempts is surfaced to the caller; for the live
// subscription that means fail-stop and a manual restart.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Delay is the wait between attempts.
	Delay time.Duration
	// Exponential doubles the delay after each failed attempt.
	Exponential bool
}

// DefaultRetryPolicy mirrors the historical 5 attempts at a fixed 5s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Second}
}

// Do runs fn until it succeeds, attempts are exhausted, or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if p.Exponential {
			delay *= 2
		}
	}
}
