package domain

import "errors"

// ErrInvalidEvent is wrapped by every producer-side validation failure:
// unknown event type, empty lobby or key, or a payload that does not satisfy
// the type's schema.
var ErrInvalidEvent = errors.New("invalid event")

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")
