package logging

import "context"

// NoOpLogger discards all logs. Tests inject it where output is noise.
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that drops everything.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// Debug is a no-op.
func (n *NoOpLogger) Debug(msg string, fields ...interface{}) {}

// Info is a no-op.
func (n *NoOpLogger) Info(msg string, fields ...interface{}) {}

// Warn is a no-op.
func (n *NoOpLogger) Warn(msg string, fields ...interface{}) {}

// Error is a no-op.
func (n *NoOpLogger) Error(msg string, fields ...interface{}) {}

// Fatal is a no-op and does not exit.
func (n *NoOpLogger) Fatal(msg string, fields ...interface{}) {}

// DebugContext is a no-op.
func (n *NoOpLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {}

// InfoContext is a no-op.
func (n *NoOpLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {}

// WarnContext is a no-op.
func (n *NoOpLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {}

// ErrorContext is a no-op.
func (n *NoOpLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {}

// WithRequestID returns the receiver.
func (n *NoOpLogger) WithRequestID(requestID string) Logger { return n }

// WithComponent returns the receiver.
func (n *NoOpLogger) WithComponent(component string) Logger { return n }
