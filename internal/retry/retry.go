// Package retry provides exponential-backoff retries for transient
// failures. The default predicate delegates to the application error
// taxonomy so only connection, timeout and resource-pressure failures
// are retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	apperrors "openapi-mcp/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts     int              // total attempts including the first (0 = unlimited)
	InitialDelay    time.Duration    // delay before the first retry
	MaxDelay        time.Duration    // backoff ceiling
	Multiplier      float64          // backoff multiplier
	RandomizeFactor float64          // jitter factor (0-1)
	RetryIf         func(error) bool // retryability predicate
	OnRetry         func(attempt int, delay time.Duration, err error)
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        60 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}

// Operation is a retryable operation.
type Operation func(ctx context.Context) error

// Result describes one retry run.
type Result struct {
	Attempts int           // attempts made
	Duration time.Duration // total wall time across attempts
	Err      error         // final error, nil on success
}

// Retrier executes operations with retries.
type Retrier struct {
	config *Config
}

// New creates a retrier.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.RandomizeFactor < 0 {
		config.RandomizeFactor = 0
	} else if config.RandomizeFactor > 1 {
		config.RandomizeFactor = 1
	}
	if config.RetryIf == nil {
		config.RetryIf = DefaultRetryIf
	}
	return &Retrier{config: config}
}

// Do executes the operation with retries.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{}

	var lastErr error
	delay := r.config.InitialDelay

retryLoop:
	for attempt := 1; r.config.MaxAttempts == 0 || attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			lastErr = fmt.Errorf("context cancelled: %w", err)
			break
		}

		err := op(ctx)
		if err == nil {
			result.Duration = time.Since(start)
			return result
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			break
		}
		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			break
		}

		nextDelay := r.jitter(delay)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, nextDelay, err)
		}

		select {
		case <-time.After(nextDelay):
			delay = r.nextDelay(delay)
		case <-ctx.Done():
			lastErr = fmt.Errorf("context cancelled during retry delay: %w", ctx.Err())
			break retryLoop
		}
	}

	result.Duration = time.Since(start)
	result.Err = lastErr
	return result
}

// jitter randomizes a delay inside the configured factor.
func (r *Retrier) jitter(delay time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 {
		return delay
	}
	delta := float64(delay) * r.config.RandomizeFactor
	low := float64(delay) - delta
	high := float64(delay) + delta
	return time.Duration(low + rand.Float64()*(high-low)) // #nosec G404 -- jitter, not crypto
}

// nextDelay advances the exponential backoff up to the ceiling.
func (r *Retrier) nextDelay(currentDelay time.Duration) time.Duration {
	next := time.Duration(float64(currentDelay) * r.config.Multiplier)
	if next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}

// TemporaryError marks an error as retryable regardless of its class.
type TemporaryError struct {
	Err error
}

func (e *TemporaryError) Error() string {
	return fmt.Sprintf("temporary error: %v", e.Err)
}

func (e *TemporaryError) Unwrap() error { return e.Err }

func (e *TemporaryError) Temporary() bool { return true }

// PermanentError marks an error as never retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// DefaultRetryIf retries explicitly temporary errors and transient
// application errors; explicitly permanent errors never retry.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return false
	}
	var tempErr *TemporaryError
	if errors.As(err, &tempErr) {
		return true
	}
	type temporary interface {
		Temporary() bool
	}
	var te temporary
	if errors.As(err, &te) {
		return te.Temporary()
	}

	return apperrors.IsTransient(err)
}

// Retry executes the operation with the default configuration.
func Retry(ctx context.Context, op Operation) error {
	return New(DefaultConfig()).Do(ctx, op).Err
}

// RetryWithConfig executes the operation with a custom configuration.
func RetryWithConfig(ctx context.Context, config *Config, op Operation) error {
	return New(config).Do(ctx, op).Err
}

// ExponentialBackoff creates a factor-2 backoff config capped at one
// minute.
func ExponentialBackoff(maxAttempts int) *Config {
	return &Config{
		MaxAttempts:     maxAttempts,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        1 * time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}

// LinearBackoff creates a constant-delay config.
func LinearBackoff(maxAttempts int, delay time.Duration) *Config {
	return &Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: delay,
		MaxDelay:     delay,
		Multiplier:   1.0,
		RetryIf:      DefaultRetryIf,
	}
}
