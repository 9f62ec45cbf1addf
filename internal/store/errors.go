package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrUnavailable marks failures caused by missing infrastructure rather than
// bad input: an unprovisioned schema or a closed database.
var ErrUnavailable = errors.New("store unavailable")

// IsUnavailable reports whether err wraps ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// wrapErr prefixes err with op and tags infrastructure failures with
// ErrUnavailable. Returns nil for a nil err.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "database is closed")
}
