// Package errors provides the typed error kinds surfaced by the MCP tools
// and their translation to JSON-RPC error objects.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// ErrorCode is the semantic kind of a failure. Kinds map onto JSON-RPC
// codes in ToJSONRPCError.
type ErrorCode string

const (
	// ErrorCodeValidation marks a tool parameter outside its contract.
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeResourceNotFound marks a missed schema or endpoint lookup.
	ErrorCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	// ErrorCodeSchemaResolution marks an unresolved or cyclic reference
	// failure during expansion.
	ErrorCodeSchemaResolution ErrorCode = "SCHEMA_RESOLUTION_ERROR"
	// ErrorCodeCodeGeneration marks an unsupported format or a failed
	// snippet build.
	ErrorCodeCodeGeneration ErrorCode = "CODE_GENERATION_ERROR"
	// ErrorCodeDatabaseConnection marks store reachability or transient
	// I/O failures.
	ErrorCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION_ERROR"
	// ErrorCodeDatabaseTimeout marks a store operation exceeding its
	// budget.
	ErrorCodeDatabaseTimeout ErrorCode = "DATABASE_TIMEOUT_ERROR"
	// ErrorCodeResourceExhausted marks the concurrency cap being reached.
	ErrorCodeResourceExhausted ErrorCode = "RESOURCE_EXHAUSTED"
	// ErrorCodeServiceUnavailable marks the circuit breaker rejecting
	// while open.
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrorCodeInternal marks any unhandled path.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// JSON-RPC error codes reserved by the tool surface.
const (
	RPCCodeInvalidRequest   = -32600
	RPCCodeMethodNotFound   = -32601
	RPCCodeInvalidParams    = -32602
	RPCCodeInternalError    = -32603
	RPCCodeResourceNotFound = -1001
	RPCCodeCodeGeneration   = -1002
	RPCCodeSchemaResolution = -1003
)

// AppError is the unified error value carried through the request engine.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	cause     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithRequestID attaches the correlation id.
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// WithDetail adds one detail entry.
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Recoverable reports whether the failure is transient: callers may retry
// after a delay.
func (e *AppError) Recoverable() bool {
	switch e.Code {
	case ErrorCodeDatabaseConnection, ErrorCodeDatabaseTimeout,
		ErrorCodeResourceExhausted, ErrorCodeServiceUnavailable:
		return true
	}
	return false
}

// RPCCode maps the semantic kind to the reserved JSON-RPC code.
func (e *AppError) RPCCode() int {
	switch e.Code {
	case ErrorCodeValidation:
		return RPCCodeInvalidParams
	case ErrorCodeResourceNotFound:
		return RPCCodeResourceNotFound
	case ErrorCodeCodeGeneration:
		return RPCCodeCodeGeneration
	case ErrorCodeSchemaResolution:
		return RPCCodeSchemaResolution
	default:
		return RPCCodeInternalError
	}
}

// ToJSONRPCError renders the error as a JSON-RPC error object. The data
// payload is scrubbed of sensitive fields and carries the recoverable flag
// for transient kinds.
func (e *AppError) ToJSONRPCError() *protocol.JSONRPCError {
	data := make(map[string]interface{}, len(e.Details)+3)
	for k, v := range e.Details {
		data[k] = v
	}
	data["kind"] = string(e.Code)
	if e.RequestID != "" {
		data["request_id"] = e.RequestID
	}
	if e.Recoverable() {
		data["recoverable"] = true
	}
	return &protocol.JSONRPCError{
		Code:    e.RPCCode(),
		Message: e.Message,
		Data:    Scrub(data),
	}
}

// NewValidationError reports a parameter outside its contract. The data
// payload names the parameter, echoes the offending value and proposes
// corrections.
func NewValidationError(parameter, reason string, value interface{}, suggestions []string) *AppError {
	details := map[string]interface{}{
		"parameter": parameter,
		"reason":    reason,
	}
	if value != nil {
		details["value"] = value
	}
	if len(suggestions) > 0 {
		details["suggestions"] = suggestions
	}
	return &AppError{
		Code:    ErrorCodeValidation,
		Message: fmt.Sprintf("invalid parameter %q: %s", parameter, reason),
		Details: details,
	}
}

// NewResourceNotFound reports a missed lookup; similar lists close names.
func NewResourceNotFound(resource, name string, similar []string) *AppError {
	details := map[string]interface{}{
		"resource": resource,
		"name":     name,
	}
	if len(similar) > 0 {
		details["similar"] = similar
	}
	return &AppError{
		Code:    ErrorCodeResourceNotFound,
		Message: fmt.Sprintf("%s %q not found", resource, name),
		Details: details,
	}
}

// NewSchemaResolutionError reports a failed reference expansion.
func NewSchemaResolutionError(schema, reason string, cyclePath []string) *AppError {
	details := map[string]interface{}{
		"schema": schema,
	}
	if len(cyclePath) > 0 {
		details["cycle_path"] = cyclePath
	}
	return &AppError{
		Code:    ErrorCodeSchemaResolution,
		Message: fmt.Sprintf("schema resolution failed for %q: %s", schema, reason),
		Details: details,
	}
}

// NewCodeGenerationError reports a failed snippet build.
func NewCodeGenerationError(endpoint, format, reason string) *AppError {
	return &AppError{
		Code:    ErrorCodeCodeGeneration,
		Message: fmt.Sprintf("code generation failed for %s (%s): %s", endpoint, format, reason),
		Details: map[string]interface{}{
			"endpoint": endpoint,
			"format":   format,
		},
	}
}

// NewDatabaseConnectionError wraps a store reachability failure.
func NewDatabaseConnectionError(err error) *AppError {
	return &AppError{
		Code:    ErrorCodeDatabaseConnection,
		Message: "store connection failed",
		Details: map[string]interface{}{"error": redactError(err)},
		cause:   err,
	}
}

// NewDatabaseTimeoutError wraps a store operation exceeding its budget.
func NewDatabaseTimeoutError(operation string, budget time.Duration) *AppError {
	return &AppError{
		Code:    ErrorCodeDatabaseTimeout,
		Message: fmt.Sprintf("store operation %q exceeded its %s budget", operation, budget),
		Details: map[string]interface{}{
			"operation": operation,
			"budget_ms": budget.Milliseconds(),
		},
	}
}

// NewResourceExhausted reports the concurrency cap being hit.
func NewResourceExhausted(limit int, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:    ErrorCodeResourceExhausted,
		Message: fmt.Sprintf("too many concurrent tool executions (limit %d)", limit),
		Details: map[string]interface{}{
			"limit":               limit,
			"retry_after_seconds": int(retryAfter.Seconds()),
		},
	}
}

// NewServiceUnavailable reports a circuit-breaker rejection.
func NewServiceUnavailable(reason string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:    ErrorCodeServiceUnavailable,
		Message: "service temporarily unavailable: " + reason,
		Details: map[string]interface{}{
			"retry_after_seconds": int(retryAfter.Seconds()),
		},
	}
}

// NewInternalError wraps an unhandled failure.
func NewInternalError(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = "internal error: " + redactError(err)
	}
	return &AppError{
		Code:    ErrorCodeInternal,
		Message: msg,
		cause:   err,
	}
}

// FromError normalizes any error into an AppError, classifying well-known
// failure shapes. AppErrors pass through untouched.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var app *AppError
	if stderrors.As(err, &app) {
		return app
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &AppError{
			Code:    ErrorCodeDatabaseTimeout,
			Message: "operation timed out",
			cause:   err,
		}
	case isConnectionError(err):
		return NewDatabaseConnectionError(err)
	default:
		return NewInternalError(err)
	}
}

// IsTransient reports whether an error belongs to the retryable class:
// connection failures, timeouts and resource exhaustion.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var app *AppError
	if stderrors.As(err, &app) {
		switch app.Code {
		case ErrorCodeDatabaseConnection, ErrorCodeDatabaseTimeout, ErrorCodeResourceExhausted:
			return true
		}
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"database is locked",
		"database table is locked",
		"bad connection",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// redactError strips credential-bearing fragments (user:pass@host DSNs)
// from an error string before it can reach a client.
func redactError(err error) string {
	if err == nil {
		return ""
	}
	return redactConnectionStrings(err.Error())
}
