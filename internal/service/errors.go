package service

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated means the caller has no usable session or credentials
// and should sign in again rather than retry.
var ErrUnauthenticated = errors.New("not authenticated")

// ValidationError rejects a malformed request. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
