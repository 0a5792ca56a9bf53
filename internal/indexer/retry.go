package indexer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"orderScope/internal/model"
)

const (
	defaultRetryDelay = 100 * time.Millisecond
	maxRetryDelay     = 30 * time.Second
)

// retryPolicy retries RPC reads with doubling backoff, capped at
// maxRetryDelay.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func newRetryPolicy(maxRetries int, baseDelay time.Duration, logger *zap.Logger) retryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retryPolicy{maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

// retryable reports whether another attempt could change the outcome.
// Coded rejections and context expiry are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, errRangeTooLarge) {
		return false
	}
	var rejection *model.Rejection
	return !errors.As(err, &rejection)
}

// do runs fn until it succeeds, fails with a final error, or the retries
// are spent. op names the call in logs.
func (p retryPolicy) do(ctx context.Context, op string, fn func(context.Context) error, fields ...zap.Field) error {
	delay := p.baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.maxRetries || !retryable(err) {
			return err
		}
		p.logger.Warn(op+" failed, retrying",
			append(fields, zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))...)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}
