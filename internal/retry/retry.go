// Package retry wraps a fallible operation with bounded, policy-driven
// retry, as described in spec.md §4.5.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dbsmedya/goarchive/internal/logger"
)

// Policy controls one named operation's retry behaviour (spec.md §6
// "Retry policy").
type Policy struct {
	Enabled           bool
	MaxRetryCount     int
	RetryDelaySeconds int
}

// DefaultPolicy matches the documented defaults: enabled, 3 retries, 5s delay.
func DefaultPolicy() Policy {
	return Policy{Enabled: true, MaxRetryCount: 3, RetryDelaySeconds: 5}
}

// Classification is the outcome of classifying a failure for retry purposes.
type Classification int

const (
	// NotRetryable means the failure should surface immediately.
	NotRetryable Classification = iota
	// Retryable means the operation may be attempted again.
	Retryable
	// Cancelled means the context was cancelled; never retry.
	Cancelled
)

// MySQL deadlock / lock-wait-timeout error numbers (spec.md §4.5 "a
// transient database error whose driver-specific code indicates a deadlock
// victim").
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// Classify inspects err and reports whether RetryExecutor should retry it.
// Cancellation is never retried. A *mysql.MySQLError carrying a deadlock or
// lock-wait-timeout number is retryable, and so is driver.ErrBadConn (a
// connection reset mid-query). Everything else is not retryable by default.
func Classify(err error) Classification {
	if err == nil {
		return NotRetryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return Retryable
		default:
			return NotRetryable
		}
	}

	// A bad/closed connection surfaced mid-query looks like a transient
	// connection reset; spec.md §7 classifies this as TransientDatabaseError.
	if errors.Is(err, driver.ErrBadConn) {
		return Retryable
	}

	return NotRetryable
}

// Classifier lets callers plug in a different retryable-failure policy than
// Classify's default (spec.md §4.5: "pluggable, default below").
type Classifier func(error) Classification

// Executor runs an operation under a named retry Policy.
type Executor struct {
	classify Classifier
	logger   *logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExecutor builds an Executor using the default MySQL classifier.
func NewExecutor(log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Executor{classify: Classify, logger: log, sleep: sleepCtx}
}

// WithClassifier returns a copy of e using the given Classifier instead of
// the default.
func (e *Executor) WithClassifier(c Classifier) *Executor {
	clone := *e
	clone.classify = c
	return &clone
}

// Action is the operation Execute retries.
type Action func(ctx context.Context) error

// Execute runs action up to 1+policy.MaxRetryCount times, sleeping
// policy.RetryDelaySeconds between attempts, honoring ctx cancellation at
// every suspension point. name identifies the operation in log output
// (e.g. "orders-Archive", "orders-Csv" per spec.md §4.1).
func (e *Executor) Execute(ctx context.Context, name string, policy Policy, action Action) error {
	if !policy.Enabled {
		return action(ctx)
	}

	attempts := policy.MaxRetryCount + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = action(ctx)
		if lastErr == nil {
			return nil
		}

		class := e.classify(lastErr)
		if class == Cancelled {
			return lastErr
		}
		if class != Retryable || attempt == attempts {
			return lastErr
		}

		e.logger.Warnw("retrying operation after transient failure",
			"operation", name,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr,
		)

		delay := time.Duration(policy.RetryDelaySeconds) * time.Second
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("operation %q exhausted retries: %w", name, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
