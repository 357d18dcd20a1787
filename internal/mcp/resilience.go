package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "openapi-mcp/internal/errors"
	"openapi-mcp/internal/logging"
	"openapi-mcp/internal/websocket"
)

// execute wraps one validated tool call in the resilience envelope:
// timeout, circuit breaker, retry, concurrency cap. Errors are logged
// exactly once, here, with the correlation id.
func (s *Server) execute(ctx context.Context, tool string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	requestID := newRequestID()
	logger := s.logger.WithRequestID(requestID)
	ctx = context.WithValue(ctx, logging.RequestIDKey, requestID)

	timeout := time.Duration(s.cfg.Resilience.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	if err := s.breaker.Allow(); err != nil {
		appErr := apperrors.NewServiceUnavailable("circuit breaker open", s.breaker.RetryAfter()).
			WithRequestID(requestID)
		s.monitor.Observe(ctx, tool, time.Since(start), appErr)
		logger.Warn("tool call rejected", "tool", tool, "reason", err.Error())
		return nil, appErr
	}

	var result interface{}
	res := s.retriers[tool].Do(ctx, func(ctx context.Context) error {
		select {
		case s.slots <- struct{}{}:
		default:
			return apperrors.NewResourceExhausted(cap(s.slots), time.Second)
		}
		defer func() { <-s.slots }()

		r, err := fn(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	err := res.Err
	s.breaker.Record(storeFailure(err))
	took := time.Since(start)
	s.monitor.Observe(ctx, tool, took, err)
	s.emitToolEvent(tool, requestID, took, err)

	if err != nil {
		appErr := apperrors.FromError(err).WithRequestID(requestID)
		logger.Error("tool call failed",
			"tool", tool,
			"kind", string(appErr.Code),
			"error", appErr.Error(),
			"attempts", res.Attempts,
			"took_ms", took.Milliseconds(),
		)
		return nil, appErr
	}

	logger.Debug("tool call completed",
		"tool", tool,
		"attempts", res.Attempts,
		"took_ms", took.Milliseconds(),
	)
	return result, nil
}

// storeFailure filters the outcome down to the failures the breaker
// guards against: store reachability and store timeouts. Client errors
// must not trip it.
func storeFailure(err error) error {
	if err == nil {
		return nil
	}
	var app *apperrors.AppError
	if errors.As(err, &app) {
		switch app.Code {
		case apperrors.ErrorCodeDatabaseConnection, apperrors.ErrorCodeDatabaseTimeout:
			return err
		}
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *Server) emitToolEvent(tool, requestID string, took time.Duration, err error) {
	if s.hub == nil {
		return
	}
	event := websocket.NewEvent(websocket.EventTool, "called", s.documentSlug(), map[string]interface{}{
		"tool":    tool,
		"took_ms": took.Milliseconds(),
		"ok":      err == nil,
	})
	event.Tool = tool
	event.RequestID = requestID
	s.hub.Broadcast(event)
}

func (s *Server) documentSlug() string {
	idx := s.holder.Get()
	if idx == nil || idx.Document() == nil {
		return ""
	}
	return idx.Document().Title
}

// newRequestID returns a short opaque correlation id.
func newRequestID() string {
	return uuid.NewString()[:8]
}
