package streams

import (
	"errors"
	"fmt"
)

// StreamError is a domain error carrying a machine-readable code.
type StreamError struct {
	Code    string
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeStreamNotFound = "STREAM_NOT_FOUND"
	ErrCodeInvalidRecord  = "INVALID_RECORD"
	ErrCodeStoreError     = "STORE_ERROR"
)

// NewStreamError creates a new stream error
func NewStreamError(code, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NotFound builds the error stores return for an unknown video id.
func NotFound(videoID string) *StreamError {
	return NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", videoID), nil)
}

// IsNotFound reports whether err is a STREAM_NOT_FOUND StreamError.
func IsNotFound(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Code == ErrCodeStreamNotFound
}
