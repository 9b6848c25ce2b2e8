package measure

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// errBudgetSpent marks retries cut short because the next wait would
// outlast the device budget.
var errBudgetSpent = errors.New("budget spent")

// RetryConfig bounds how a device test is retried within its budget.
// A zero or negative MaxRetries means a single attempt.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the retry policy used within a device budget
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   time.Second,
	}
}

// backoff yields doubling delays capped at max
type backoff struct {
	next time.Duration
	max  time.Duration
}

func newBackoff(cfg RetryConfig) *backoff {
	base := cfg.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	return &backoff{next: base, max: max(cfg.MaxDelay, base)}
}

func (b *backoff) Next() time.Duration {
	d := b.next
	b.next = min(b.next*2, b.max)
	return d
}

// retryTest runs attempt until it succeeds, returns an error that is not
// retryable, or the retries run out. A wait that would reach the ctx
// deadline is not started; the last attempt's error is returned instead,
// so a failing service is reported as a transport error rather than a
// timeout.
func retryTest(ctx context.Context, cfg RetryConfig, attempt func() (Metrics, error)) (Metrics, error) {
	b := newBackoff(cfg)
	retries := max(cfg.MaxRetries, 0)

	for n := 0; ; n++ {
		m, err := attempt()
		if err == nil {
			return m, nil
		}
		if !isRetryable(err) {
			return Metrics{}, err
		}
		if n == retries {
			return Metrics{}, fmt.Errorf("gave up after %d attempts: %w", n+1, err)
		}

		delay := b.Next()
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			return Metrics{}, fmt.Errorf("%w after %d attempts: %w", errBudgetSpent, n+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Metrics{}, ctx.Err()
		case <-timer.C:
		}
	}
}
