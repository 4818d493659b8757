package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// DefaultAttempts bounds retries of bookkeeping writes.
	DefaultAttempts     = 3
	defaultInitialDelay = 50 * time.Millisecond
	defaultMaxDelay     = time.Second
)

// RetryPolicy describes the bounded exponential backoff applied to busy errors.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns three attempts starting at 50ms and doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:     DefaultAttempts,
		InitialDelay: defaultInitialDelay,
		MaxDelay:     defaultMaxDelay,
	}
}

// Retry runs write until it succeeds, fails with a non-busy error, or the policy's attempts
// are exhausted. Only internal bookkeeping writes go through here; caller-facing writes
// surface contention immediately.
func Retry(ctx context.Context, logger *zap.Logger, operation string, policy RetryPolicy, write func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	exponential := backoff.NewExponentialBackOff()
	if policy.InitialDelay > 0 {
		exponential.InitialInterval = policy.InitialDelay
	}
	if policy.MaxDelay > 0 {
		exponential.MaxInterval = policy.MaxDelay
	}
	exponential.Multiplier = 2
	exponential.RandomizationFactor = 0
	exponential.MaxElapsedTime = 0

	strategy := backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(attempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := write()
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}, strategy, func(err error, delay time.Duration) {
		logger.Warn("store busy, retrying write",
			zap.String("operation", operation),
			zap.Duration("delay", delay),
			zap.Error(err))
	})
}
