package pipeline

import (
	"errors"
	"fmt"
)

// QueueUnavailableError reports that the queue store is not provisioned or
// not reachable. Callers degrade on it: skip commentary, keep serving the
// triggering request.
type QueueUnavailableError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *QueueUnavailableError) Error() string {
	return fmt.Sprintf("queue unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *QueueUnavailableError) Unwrap() error { return e.Err }

// IsQueueUnavailable returns true if err is a queue-unavailable condition.
// Uses errors.As to handle wrapped errors.
func IsQueueUnavailable(err error) bool {
	var qe *QueueUnavailableError
	return errors.As(err, &qe)
}
