package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "openapi-mcp/internal/errors"
)

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		RetryIf:      DefaultRetryIf,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r := New(fastConfig(3))
	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransient(t *testing.T) {
	r := New(fastConfig(3))
	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &TemporaryError{Err: errors.New("connection reset")}
		}
		return nil
	})
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Attempts)
}

func TestDoStopsOnPermanent(t *testing.T) {
	r := New(fastConfig(5))
	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &PermanentError{Err: errors.New("bad input")}
	})
	require.Error(t, result.Err)
	assert.Equal(t, 1, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := New(fastConfig(3))
	calls := 0
	result := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &TemporaryError{Err: errors.New("still down")}
	})
	require.Error(t, result.Err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, result.Attempts)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := New(&Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		RetryIf:      DefaultRetryIf,
	})
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	result := r.Do(ctx, func(ctx context.Context) error {
		calls++
		return &TemporaryError{Err: errors.New("down")}
	})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "context cancelled")
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.True(t, DefaultRetryIf(&TemporaryError{Err: errors.New("x")}))
	assert.False(t, DefaultRetryIf(&PermanentError{Err: errors.New("x")}))
	assert.True(t, DefaultRetryIf(apperrors.NewDatabaseTimeoutError("query", time.Second)))
	assert.False(t, DefaultRetryIf(apperrors.NewValidationError("keywords", "too long", nil, nil)))
}

func TestNextDelayCapped(t *testing.T) {
	r := New(&Config{
		MaxAttempts:  3,
		InitialDelay: 40 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	})
	assert.Equal(t, 60*time.Second, r.nextDelay(40*time.Second))
}

func TestOnRetryCallback(t *testing.T) {
	cfg := fastConfig(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		attempts = append(attempts, attempt)
	}
	r := New(cfg)
	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return &TemporaryError{Err: errors.New("down")}
	})
	assert.Equal(t, []int{1, 2}, attempts)
}
