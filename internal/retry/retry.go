// Package retry wraps individual idempotent store calls with error
// classification and a fixed backoff schedule. Only throttling is treated as
// transient; everything else fails the operation immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"secretsportal/internal/platform/metrics"
	"secretsportal/pkg/platform/sentinel"
)

// Fixed attempt budget and delays: delay only before attempts 2 and 3.
const maxAttempts = 3

var delays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// OperationFailedError is returned when the retry budget is exhausted. It
// wraps the last error the operation produced.
type OperationFailedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *OperationFailedError) Unwrap() error { return e.Err }

// Executor runs store operations with the fixed retry schedule. The sleep
// function is injectable so tests can assert the schedule without waiting.
type Executor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithSleep replaces the delay function, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

// New constructs an Executor.
func New(logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{logger: logger, sleep: sleepCtx}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op, retrying throttled failures up to the attempt budget. NotFound
// and ConditionFailed propagate unchanged on the first failure, as does any
// unclassified error. Exhaustion surfaces as an OperationFailedError.
func (e *Executor) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := delays[attempt-2]
			e.logger.WarnContext(ctx, "retrying throttled operation",
				"operation", label,
				"attempt", attempt,
				"delay", delay,
			)
			if e.metrics != nil {
				e.metrics.RetryAttempts.WithLabelValues(label).Inc()
			}
			if err := e.sleep(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return &OperationFailedError{Label: label, Attempts: maxAttempts, Err: lastErr}
}

// Values runs an operation returning a value under the executor's schedule.
// Methods cannot be generic, so this is a package function.
func Values[T any](ctx context.Context, e *Executor, label string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, label, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// retryable classifies store errors. NotFound and ConditionFailed are facts
// about the data, not pressure; only throttling warrants another attempt.
func retryable(err error) bool {
	if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrConditionFailed) {
		return false
	}
	return errors.Is(err, sentinel.ErrThrottled)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
