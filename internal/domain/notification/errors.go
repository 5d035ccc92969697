package notification

import "errors"

var (
	// ErrUnrecognizedEvent marks a webhook payload that matches no known shape.
	ErrUnrecognizedEvent = errors.New("unrecognized event")
	// ErrDuplicateComment is returned when a comment was already folded into the queue.
	ErrDuplicateComment = errors.New("comment already processed")
	// ErrSendFailure wraps any failed or timed out delivery attempt.
	ErrSendFailure = errors.New("send failure")
	// ErrRecordFailure wraps a failed write to the guard or the queue.
	ErrRecordFailure = errors.New("record failure")
	// ErrNotFound is returned when a pending notification row does not exist.
	ErrNotFound = errors.New("pending notification not found")
)
