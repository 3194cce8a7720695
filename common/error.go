package common

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store, the queue client and the worker.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrStore             = errors.New("job store failure")
)

type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
	Err     error          `json:"-"`
}

func (e APIError) Error() string {
	return e.Message
}

// Unwrap exposes the taxonomy sentinel so callers can use errors.Is.
func (e APIError) Unwrap() error {
	return e.Err
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// NewAPIError creates an APIError with status, message, and optional fields
func NewAPIError(status int, message string, fields map[string]any) APIError {
	return APIError{
		Status:  status,
		Message: message,
		Fields:  fields,
	}
}

// Wrap attaches a taxonomy sentinel to an APIError.
func (e APIError) Wrap(err error) APIError {
	e.Err = err
	return e
}

// HandlerError is a failure raised by a job's execution handler. It is
// recorded on the job row and never escapes the worker loop.
type HandlerError struct {
	JobID string
	Type  string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed for job %s: %v", e.Type, e.JobID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
