package taskcluster

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of client error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates the requested resource does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeTransport indicates the request never got a response.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"
	// ErrCodeServer indicates a 5xx response.
	ErrCodeServer ErrorCode = "SERVER_ERROR"
	// ErrCodeRejected indicates a 4xx response other than 404.
	ErrCodeRejected ErrorCode = "REQUEST_REJECTED"
	// ErrCodeDecode indicates the response body could not be decoded.
	ErrCodeDecode ErrorCode = "DECODE_ERROR"
)

// ClientError represents an error talking to a taskcluster service.
type ClientError struct {
	Code       ErrorCode
	Service    string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	prefix := fmt.Sprintf("[%s] %s", e.Code, e.Service)
	if e.StatusCode > 0 {
		prefix = fmt.Sprintf("%s (HTTP %d)", prefix, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// NewClientError creates a new ClientError.
func NewClientError(code ErrorCode, service, message string, cause error) *ClientError {
	return &ClientError{
		Code:    code,
		Service: service,
		Message: message,
		Cause:   cause,
	}
}

func statusError(service string, status int, message string) *ClientError {
	code := ErrCodeRejected
	switch {
	case status == 404:
		code = ErrCodeNotFound
	case status >= 500:
		code = ErrCodeServer
	}
	return &ClientError{Code: code, Service: service, StatusCode: status, Message: message}
}

func codeOf(err error) (ErrorCode, bool) {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Code, true
	}
	return "", false
}

// IsNotFound checks if the error reports a missing resource.
func IsNotFound(err error) bool {
	code, ok := codeOf(err)
	return ok && code == ErrCodeNotFound
}

// IsTransient checks if the error is worth retrying.
func IsTransient(err error) bool {
	code, ok := codeOf(err)
	if !ok {
		return false
	}
	switch code {
	case ErrCodeTransport, ErrCodeTimeout, ErrCodeServer:
		return true
	}
	return false
}
