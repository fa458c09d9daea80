package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds a retried operation.
type RetryPolicy struct {
	// MaxAttempts counts the first try. Values below 1 mean a single try.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// OnRetry, if set, is called before each wait.
	OnRetry func(err error, wait time.Duration)
}

// DefaultRetryPolicy retries up to 20 times with randomized exponential
// backoff between 1s and 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     20,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Retry runs op until it succeeds, returns an error retryable rejects, the
// policy is exhausted or ctx is done. The last error from op is returned.
func Retry(ctx context.Context, policy RetryPolicy, retryable func(error) bool, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		exp.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		exp.MaxInterval = policy.MaxInterval
	}
	exp.MaxElapsedTime = 0

	retries := 0
	if policy.MaxAttempts > 1 {
		retries = policy.MaxAttempts - 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	var last error
	err := backoff.RetryNotify(func() error {
		last = op()
		if last != nil && !retryable(last) {
			return backoff.Permanent(last)
		}
		return last
	}, b, func(err error, wait time.Duration) {
		if policy.OnRetry != nil {
			policy.OnRetry(err, wait)
		}
	})
	if err != nil && last != nil {
		return last
	}
	return err
}
