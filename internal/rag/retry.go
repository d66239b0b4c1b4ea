package rag

import (
	"context"
	"time"
)

// RetryPolicy retries an operation on transient failures with exponential
// backoff. It is applied uniformly at the boundary where each external
// capability is invoked, instead of ad hoc per call site.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// MinWait and MaxWait bound the delay between attempts.
	MinWait time.Duration
	MaxWait time.Duration
	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy matches the capability contract: 3 attempts with
// exponential waits bounded to [2s, 10s], transient errors only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		MinWait:  2 * time.Second,
		MaxWait:  10 * time.Second,
	}
}

// Do runs fn until it succeeds, fails permanently, exhausts the attempt
// budget, or the context is cancelled. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == attempts {
			return err
		}

		delay := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	minWait := p.MinWait
	if minWait <= 0 {
		minWait = 2 * time.Second
	}
	maxWait := p.MaxWait
	if maxWait <= 0 {
		maxWait = 10 * time.Second
	}

	d := minWait << uint(attempt-1)
	if d > maxWait {
		d = maxWait
	}
	if d < minWait {
		d = minWait
	}
	return d
}
