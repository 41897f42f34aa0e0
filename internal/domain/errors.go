package domain

import (
	"fmt"
	"net/http"
)

// ErrorType represents the category of a protocol error.
type ErrorType string

const (
	// ErrorTypeInvalidRequest indicates a malformed or invalid request.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"

	// ErrorTypeNotFound indicates a session or resource was not found.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeSessionEnded indicates an operation on an irreversibly ended session.
	ErrorTypeSessionEnded ErrorType = "session_ended"

	// ErrorTypeBusy indicates a send was attempted while a turn is in flight.
	ErrorTypeBusy ErrorType = "busy"

	// ErrorTypeBackend indicates the coach backend rejected or failed a call.
	ErrorTypeBackend ErrorType = "backend"

	// ErrorTypeStream indicates a transport-level stream failure.
	ErrorTypeStream ErrorType = "stream"

	// ErrorTypeProtocol indicates a malformed backend payload.
	ErrorTypeProtocol ErrorType = "protocol"

	// ErrorTypeServer indicates an internal error.
	ErrorTypeServer ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeConnectionLost   ErrorCode = "connection_lost"
	ErrorCodeEmptyMessage     ErrorCode = "empty_message"
	ErrorCodeEmptyPosition    ErrorCode = "empty_target_position"
	ErrorCodeTurnInFlight     ErrorCode = "turn_in_flight"
	ErrorCodeSessionNotFound  ErrorCode = "session_not_found"
	ErrorCodeMalformedPayload ErrorCode = "malformed_payload"
	ErrorCodeStaleGeneration  ErrorCode = "stale_generation"
)

// ProtocolError is the canonical error returned across the coach client and
// frontdoor boundaries. Loosely typed backend payloads are validated on
// receipt and converted into one of these rather than propagated inward.
type ProtocolError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode is the suggested HTTP status code
	StatusCode int `json:"-"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *ProtocolError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeSessionEnded, ErrorTypeBusy:
		return http.StatusConflict
	case ErrorTypeBackend, ErrorTypeStream:
		return http.StatusBadGateway
	case ErrorTypeProtocol, ErrorTypeServer:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewProtocolError creates a new protocol error.
func NewProtocolError(errType ErrorType, message string) *ProtocolError {
	return &ProtocolError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *ProtocolError) WithCode(code ErrorCode) *ProtocolError {
	e.Code = code
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *ProtocolError) WithStatusCode(code int) *ProtocolError {
	e.StatusCode = code
	return e
}

// Convenience constructors for common errors

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeInvalidRequest, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeNotFound, message).
		WithCode(ErrorCodeSessionNotFound)
}

// ErrSessionEnded creates a session ended error.
func ErrSessionEnded(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeSessionEnded, message)
}

// ErrBusy creates a busy error for a turn already in flight.
func ErrBusy(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeBusy, message).
		WithCode(ErrorCodeTurnInFlight)
}

// ErrBackend creates a backend error.
func ErrBackend(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeBackend, message)
}

// ErrStream creates a stream transport error.
func ErrStream(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeStream, message)
}

// ErrConnectionLost creates the fixed error used when a stream drops before
// a terminal event.
func ErrConnectionLost() *ProtocolError {
	return NewProtocolError(ErrorTypeStream, "Connection lost").
		WithCode(ErrorCodeConnectionLost)
}

// ErrProtocol creates a malformed payload error.
func ErrProtocol(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeProtocol, message).
		WithCode(ErrorCodeMalformedPayload)
}

// ErrServer creates an internal server error.
func ErrServer(message string) *ProtocolError {
	return NewProtocolError(ErrorTypeServer, message)
}
