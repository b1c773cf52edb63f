package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/revops/pipeline-monitor/services"
)

// Operation produces one value. It must honour ctx cancellation.
type Operation[T any] func(ctx context.Context) (T, error)

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	Limit     int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Validate checks the policy constraints.
func (p RetryPolicy) Validate() error {
	if p.Limit < 0 {
		return fmt.Errorf("retry limit must be >= 0, got %d", p.Limit)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive, got %s", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// BackoffDelay returns min(base*2^attempt, max) without overflowing.
func BackoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		if d > maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// IsRetryable reports whether err may succeed on a later attempt:
// transport failures and 5xx responses. Cancellations never are.
func IsRetryable(err error) bool {
	if err == nil || services.IsCancelledError(err) {
		return false
	}
	if services.IsTransportError(err) {
		return true
	}
	if services.IsUpstreamError(err) {
		return services.StatusCode(err) >= http.StatusInternalServerError
	}
	return false
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// Retry runs op until it succeeds, fails terminally, or the policy is exhausted.
func Retry[T any](ctx context.Context, policy RetryPolicy, op Operation[T]) (T, error) {
	return retry(ctx, policy, op, sleepContext)
}

func retry[T any](ctx context.Context, policy RetryPolicy, op Operation[T], sleep sleepFunc) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, services.WrapError(services.ErrorTypeCancelled, "request cancelled", err)
		}

		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if services.IsCancelledError(err) || ctx.Err() != nil {
			return zero, err
		}
		if !IsRetryable(err) || attempt >= policy.Limit {
			return zero, err
		}

		if waitErr := sleep(ctx, BackoffDelay(attempt, policy.BaseDelay, policy.MaxDelay)); waitErr != nil {
			return zero, services.WrapError(services.ErrorTypeCancelled, "request cancelled during backoff", waitErr)
		}
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
