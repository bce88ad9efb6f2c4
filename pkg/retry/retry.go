package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy 固定间隔重试策略
type Policy struct {
	// 最大尝试次数（包含第一次），小于 1 按 1 处理
	MaxAttempts int
	// 两次尝试之间的等待时间
	Delay time.Duration
}

// NewPolicy returns a policy with the given attempt budget and delay.
func NewPolicy(maxAttempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: maxAttempts, Delay: delay}
}

// Attempts returns the effective attempt budget.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Always treats every error as retryable.
func Always(error) bool { return true }

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. attempt is 1-based.
//
// A non-retryable error is returned as is. Exhaustion returns *ExhaustedError
// wrapping the last error. Cancellation while waiting returns ctx.Err()
// joined with the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error, retryable func(error) bool) error {
	if retryable == nil {
		retryable = Always
	}

	attempts := p.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return err
			}
			return errors.Join(err, lastErr)
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		canRetry := retryable(lastErr)
		if !canRetry {
			return lastErr
		}
		if !p.ShouldRetry(attempt, canRetry) {
			break
		}

		if err := wait(ctx, p.Delay); err != nil {
			return errors.Join(err, lastErr)
		}
	}

	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

// ShouldRetry checks if another attempt is allowed after attempt failed.
func (p Policy) ShouldRetry(attempt int, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return attempt < p.Attempts()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
