// Package errhandling provides retry configuration and mechanism for remote calls.
// This file defines the fixed-delay retry policy and the executor that runs it.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default retry configuration values
const (
	DefaultMaxAttempts = 3
	DefaultDelay       = 1 * time.Second
	MaxRetryAttempts   = 20
)

// RetryPolicy is the retry policy shared by credential acquisition and
// mutation execution: up to MaxAttempts attempts, with a fixed Delay between
// consecutive attempts. The delay never grows.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	// Default: 3, Min: 1, Max: 20
	MaxAttempts int

	// Delay is the fixed pause before every new attempt.
	// Default: 1s
	Delay time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Delay:       DefaultDelay,
	}
}

// Validate validates the retry policy.
// Returns an error if any value is out of valid range.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("maxAttempts must be >= 1")
	}
	if p.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if p.Delay < 0 {
		return errors.New("delay must be >= 0")
	}
	return nil
}

// Decide reports whether a failed attempt should be followed by another one,
// and how long to wait before it. attempt is the 0-based index of the attempt
// that just failed with err.
//
// Returns (false, 0) if:
//   - err is nil
//   - err is not retryable (validation, application, malformed, authentication)
//   - attempt is the last allowed attempt
func (p RetryPolicy) Decide(attempt int, err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	if !IsRetryable(err) {
		return false, 0
	}
	if attempt+1 >= p.MaxAttempts {
		return false, 0
	}
	return true, p.Delay
}

// ============================
// Retry Executor
// ============================

// RetryFunc is a function that can be retried. Results are captured by the closure.
type RetryFunc func(ctx context.Context) error

// RetryCallback is invoked after every failed attempt with its 0-based index,
// the error and the delay before the next attempt (0 when no retry follows).
type RetryCallback func(attempt int, err error, nextDelay time.Duration)

// RetryInfo contains information about retry attempts.
type RetryInfo struct {
	// TotalAttempts is the total number of attempts made.
	TotalAttempts int

	// SuccessfulAttempt is the attempt number that succeeded (0 if failed).
	SuccessfulAttempt int

	// TotalDuration is the total time spent including retries.
	TotalDuration time.Duration

	// Delays is the list of delays between retries.
	Delays []time.Duration

	// Errors is the list of errors encountered during retries.
	Errors []error
}

// RetryExecutor executes functions with the fixed-delay retry policy.
// An executor keeps the info of its last run and is not safe for concurrent use.
type RetryExecutor struct {
	policy    RetryPolicy
	retryInfo RetryInfo
}

// NewRetryExecutor creates a new retry executor with the given policy.
func NewRetryExecutor(policy RetryPolicy) *RetryExecutor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryExecutor{policy: policy}
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. Non-retryable errors are returned unchanged.
// Exhaustion returns ErrRetriesExhausted wrapping the last error.
func (e *RetryExecutor) Execute(ctx context.Context, fn RetryFunc, callback RetryCallback) error {
	startTime := time.Now()
	e.retryInfo = RetryInfo{
		Delays: make([]time.Duration, 0),
		Errors: make([]error, 0),
	}
	defer func() {
		e.retryInfo.TotalDuration = time.Since(startTime)
	}()

	var lastErr error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		e.retryInfo.TotalAttempts = attempt + 1

		if err := ctx.Err(); err != nil {
			return ClassifyNetworkError(err)
		}

		err := fn(ctx)
		if err == nil {
			e.retryInfo.SuccessfulAttempt = attempt + 1
			return nil
		}

		lastErr = err
		e.retryInfo.Errors = append(e.retryInfo.Errors, err)

		retry, delay := e.policy.Decide(attempt, err)
		if callback != nil {
			callback(attempt, err, delay)
		}

		if !retry {
			if !IsRetryable(err) {
				return err
			}
			break
		}

		e.retryInfo.Delays = append(e.retryInfo.Delays, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ClassifyNetworkError(ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, e.retryInfo.TotalAttempts, lastErr)
}

// GetRetryInfo returns information about the last run.
func (e *RetryExecutor) GetRetryInfo() RetryInfo {
	return e.retryInfo
}
