package domain

import "errors"

var (
	// ErrInvalidPayload is returned when a command message is malformed
	ErrInvalidPayload = errors.New("invalid command payload")

	// ErrMaxRetriesExceeded is returned when a redelivered command fails again
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrRejected is returned when the batch was refused as a whole for a
	// reason a retry cannot fix
	ErrRejected = errors.New("command rejected")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
