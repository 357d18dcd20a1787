// Package logging provides structured logging for the OpenAPI MCP server.
// Everything is written to stderr: in stdio mode stdout carries the MCP
// wire protocol and must stay clean.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging interface used across the server.
// Fields are alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	// Context-aware variants pick the request id out of ctx.
	DebugContext(ctx context.Context, msg string, fields ...interface{})
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})

	WithRequestID(requestID string) Logger
	WithComponent(component string) Logger
}

// LogEntry is one structured log line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ContextKey is the type of context keys owned by this package.
type ContextKey string

// RequestIDKey carries the per-request correlation id in a context.
const RequestIDKey ContextKey = "request_id"

// LogLevel orders log severities.
type LogLevel int

// Levels, lowest to highest.
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// StructuredLogger writes JSON or text entries to an io.Writer.
type StructuredLogger struct {
	level     LogLevel
	requestID string
	component string
	useJSON   bool
	out       io.Writer
}

// NewLogger creates a logger at the given level writing JSON to stderr.
func NewLogger(level LogLevel) Logger {
	return &StructuredLogger{level: level, useJSON: true, out: os.Stderr}
}

// NewTextLogger creates a logger with human-readable output, used by the
// CLI entrypoints.
func NewTextLogger(level LogLevel) Logger {
	return &StructuredLogger{level: level, useJSON: false, out: os.Stderr}
}

// NewWriterLogger creates a logger writing to an explicit writer. Tests use
// this to capture output.
func NewWriterLogger(level LogLevel, useJSON bool, out io.Writer) Logger {
	return &StructuredLogger{level: level, useJSON: useJSON, out: out}
}

// WithRequestID returns a copy bound to a correlation id.
func (l *StructuredLogger) WithRequestID(requestID string) Logger {
	clone := *l
	clone.requestID = requestID
	return &clone
}

// WithComponent returns a copy bound to a component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	clone := *l
	clone.component = component
	return &clone
}

// Debug logs at DEBUG level.
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, "", fields...)
	}
}

// Info logs at INFO level.
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, "", fields...)
	}
}

// Warn logs at WARN level.
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, "", fields...)
	}
}

// Error logs at ERROR level.
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, "", fields...)
	}
}

// Fatal logs at FATAL level and exits the process.
func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	l.logEntry("FATAL", msg, "", fields...)
	os.Exit(1)
}

// DebugContext logs at DEBUG level with the context's request id.
func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, RequestIDFromContext(ctx), fields...)
	}
}

// InfoContext logs at INFO level with the context's request id.
func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, RequestIDFromContext(ctx), fields...)
	}
}

// WarnContext logs at WARN level with the context's request id.
func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, RequestIDFromContext(ctx), fields...)
	}
}

// ErrorContext logs at ERROR level with the context's request id.
func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, RequestIDFromContext(ctx), fields...)
	}
}

func (l *StructuredLogger) logEntry(level, msg, contextRequestID string, fields ...interface{}) {
	requestID := l.requestID
	if contextRequestID != "" {
		requestID = contextRequestID
	}

	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
		line = 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	var fieldMap map[string]interface{}
	if len(fields) > 0 {
		fieldMap = make(map[string]interface{}, len(fields)/2)
		for i := 0; i < len(fields); i += 2 {
			if i+1 < len(fields) {
				fieldMap[fmt.Sprintf("%v", fields[i])] = fields[i+1]
			} else {
				fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
			}
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		RequestID: requestID,
		Component: l.component,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	if l.useJSON {
		l.writeJSON(entry)
	} else {
		l.writeText(entry)
	}
}

func (l *StructuredLogger) writeJSON(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(l.out, string(data))
}

func (l *StructuredLogger) writeText(entry LogEntry) {
	parts := []string{entry.Timestamp, fmt.Sprintf("[%s]", entry.Level)}
	if entry.RequestID != "" {
		id := entry.RequestID
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "req:"+id)
	}
	if entry.Component != "" {
		parts = append(parts, "component:"+entry.Component)
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}
	fmt.Fprintln(l.out, strings.Join(parts, " "))
}

// Default logger instance, replaceable at startup.
var defaultLogger = NewLogger(INFO)

// SetDefaultLogger replaces the package-level logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// Debug logs through the default logger.
func Debug(msg string, fields ...interface{}) { defaultLogger.Debug(msg, fields...) }

// Info logs through the default logger.
func Info(msg string, fields ...interface{}) { defaultLogger.Info(msg, fields...) }

// Warn logs through the default logger.
func Warn(msg string, fields ...interface{}) { defaultLogger.Warn(msg, fields...) }

// Error logs through the default logger.
func Error(msg string, fields ...interface{}) { defaultLogger.Error(msg, fields...) }

// Fatal logs through the default logger and exits.
func Fatal(msg string, fields ...interface{}) { defaultLogger.Fatal(msg, fields...) }

// WithComponent returns a component logger off the default logger.
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// NewRequestID returns a short opaque correlation id.
func NewRequestID() string {
	return uuid.New().String()[:8]
}

// WithRequestID stores a request id in a context, generating one when empty.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = NewRequestID()
	}
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from a context, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// ParseLogLevel maps a level name to a LogLevel, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}
