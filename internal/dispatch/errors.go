package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/narrator/internal/domain"
)

// ErrorCode categorizes dispatch failures.
type ErrorCode string

const (
	// ErrCodeClaimFailed indicates the dedupe ledger could not be written.
	ErrCodeClaimFailed ErrorCode = "CLAIM_FAILED"

	// ErrCodeEffectFailed indicates the comment sink or push transport failed
	// after the claim was taken.
	ErrCodeEffectFailed ErrorCode = "EFFECT_FAILED"

	// ErrCodeUnsupported indicates an output the dispatcher cannot route.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED_OUTPUT"
)

// Error describes a failed dispatch of one output.
type Error struct {
	Code      ErrorCode
	RuleID    string
	Channel   domain.Channel
	DedupeKey string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: rule=%s channel=%s dedupe=%s", e.Code, e.RuleID, e.Channel, e.DedupeKey)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// IsDispatchError returns true if err is a dispatch failure.
// Uses errors.As to handle wrapped errors.
func IsDispatchError(err error) bool {
	var de *Error
	return errors.As(err, &de)
}

// IsEffectError returns true if the claim was taken but the effect failed.
func IsEffectError(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == ErrCodeEffectFailed
	}
	return false
}

func newError(code ErrorCode, out domain.DispatchOutput, err error) *Error {
	return &Error{
		Code:      code,
		RuleID:    out.RuleID,
		Channel:   out.Channel,
		DedupeKey: out.DedupeKey,
		Err:       err,
	}
}
