package mcp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp/internal/circuitbreaker"
	"openapi-mcp/internal/config"
	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/index"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/monitoring"
	"openapi-mcp/internal/retry"
)

// newEngine builds a bare engine for envelope tests: no store, no
// transport, fn-driven handlers only.
func newEngine(breakerCfg *circuitbreaker.Config, maxAttempts, maxConcurrent int) *Server {
	logger := logging.NewNoOpLogger()
	return &Server{
		cfg:     &config.Config{},
		logger:  logger,
		holder:  index.NewHolder(nil),
		monitor: monitoring.New(config.MonitoringConfig{}, logger),
		breaker: circuitbreaker.New(breakerCfg),
		retriers: map[string]*retry.Retrier{
			ToolSearchEndpoints: retry.New(&retry.Config{
				MaxAttempts:  maxAttempts,
				InitialDelay: time.Millisecond,
				MaxDelay:     5 * time.Millisecond,
				Multiplier:   2,
			}),
		},
		slots: make(chan struct{}, maxConcurrent),
	}
}

func TestExecuteReturnsHandlerResult(t *testing.T) {
	s := newEngine(nil, 1, 4)

	result, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestExecuteStampsRequestID(t *testing.T) {
	s := newEngine(nil, 1, 4)

	var seen string
	_, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			seen, _ = ctx.Value(logging.RequestIDKey).(string)
			return nil, nil
		})
	require.NoError(t, err)
	assert.Len(t, seen, 8)
}

func TestExecuteAttachesRequestIDToErrors(t *testing.T) {
	s := newEngine(nil, 1, 4)

	_, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			return nil, apperrors.NewResourceNotFound("schema", "User", nil)
		})
	appErr := asAppError(t, err)
	assert.NotEmpty(t, appErr.RequestID)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	s := newEngine(nil, 3, 4)

	var calls int32
	result, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, apperrors.NewDatabaseConnectionError(errors.New("connection refused"))
			}
			return "recovered", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	s := newEngine(nil, 3, 4)

	var calls int32
	_, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, apperrors.NewValidationError("page", "must be at least 1", 0, nil)
		})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteConcurrencyCap(t *testing.T) {
	s := newEngine(nil, 1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.execute(context.Background(), ToolSearchEndpoints,
			func(ctx context.Context) (interface{}, error) {
				close(started)
				<-release
				return nil, nil
			})
		done <- err
	}()
	<-started

	_, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			t.Error("handler must not run past the cap")
			return nil, nil
		})
	appErr := asAppError(t, err)
	assert.Equal(t, apperrors.ErrorCodeResourceExhausted, appErr.Code)
	assert.Equal(t, 1, appErr.Details["limit"])

	close(release)
	require.NoError(t, <-done)
}

func TestExecuteOpensBreakerOnStoreFailures(t *testing.T) {
	s := newEngine(&circuitbreaker.Config{
		FailureThreshold: 2,
		FailureWindow:    time.Minute,
		Cooldown:         time.Minute,
		ProbeSuccesses:   1,
	}, 1, 4)

	fail := func(ctx context.Context) (interface{}, error) {
		return nil, apperrors.NewDatabaseConnectionError(errors.New("connection refused"))
	}
	for i := 0; i < 2; i++ {
		_, err := s.execute(context.Background(), ToolSearchEndpoints, fail)
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, s.breaker.GetState())

	_, err := s.execute(context.Background(), ToolSearchEndpoints,
		func(ctx context.Context) (interface{}, error) {
			t.Error("handler must not run while the circuit is open")
			return nil, nil
		})
	appErr := asAppError(t, err)
	assert.Equal(t, apperrors.ErrorCodeServiceUnavailable, appErr.Code)
	retryAfter, ok := appErr.Details["retry_after_seconds"].(int)
	require.True(t, ok)
	assert.Greater(t, retryAfter, 0)
}

func TestExecuteClientErrorsDoNotTripBreaker(t *testing.T) {
	s := newEngine(&circuitbreaker.Config{
		FailureThreshold: 2,
		FailureWindow:    time.Minute,
		Cooldown:         time.Minute,
		ProbeSuccesses:   1,
	}, 1, 4)

	for i := 0; i < 5; i++ {
		_, err := s.execute(context.Background(), ToolSearchEndpoints,
			func(ctx context.Context) (interface{}, error) {
				return nil, apperrors.NewResourceNotFound("schema", "Nope", nil)
			})
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateClosed, s.breaker.GetState())
}

func TestStoreFailureClassification(t *testing.T) {
	assert.NoError(t, storeFailure(nil))
	assert.NoError(t, storeFailure(apperrors.NewValidationError("page", "bad", 0, nil)))
	assert.NoError(t, storeFailure(apperrors.NewResourceNotFound("schema", "User", nil)))
	assert.NoError(t, storeFailure(errors.New("plain failure")))

	assert.Error(t, storeFailure(apperrors.NewDatabaseConnectionError(errors.New("down"))))
	assert.Error(t, storeFailure(apperrors.NewDatabaseTimeoutError("query", time.Second)))
	assert.Error(t, storeFailure(context.DeadlineExceeded))
}
