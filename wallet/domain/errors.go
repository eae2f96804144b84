package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = codedError{code: "insufficient_funds", msg: "insufficient funds"}
	// ErrUnauthorized is returned when a non-moderator tries a privileged action.
	ErrUnauthorized = codedError{code: "unauthorized", msg: "unauthorized"}
	// ErrStateConflict marks actions whose preconditions no longer hold.
	ErrStateConflict = codedError{code: "state_conflict", msg: "state conflict"}
	// ErrNotFound is returned by repositories for missing records.
	ErrNotFound = codedError{code: "not_found", msg: "not found"}
	// ErrPriceChanged is returned when an order no longer matches the quoted price.
	ErrPriceChanged = codedError{code: "price_changed", msg: "price changed"}
	// ErrCorruptSession signals a stored session with an unknown step.
	ErrCorruptSession = codedError{code: "corrupt_session", msg: "corrupt session"}
)

type codedError struct {
	code string
	msg  string
}

func (e codedError) Error() string { return e.msg }

// Code exposes a stable identifier for logs.
func (e codedError) Code() string { return e.code }

// ValidationError describes rejected user input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Code exposes a stable identifier for logs.
func (e *ValidationError) Code() string { return "validation" }

// UpstreamError reports a failed call to the fulfillment API.
type UpstreamError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("upstream %s: %s", e.Op, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Code exposes a stable identifier for logs.
func (e *UpstreamError) Code() string { return "upstream_failure" }

// Temporary reports whether the failure came from transport or a 5xx answer
// rather than an explicit rejection by the API.
func (e *UpstreamError) Temporary() bool {
	return e.Err != nil || e.Status >= 500
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsUpstream reports whether err is an *UpstreamError.
func IsUpstream(err error) bool {
	var u *UpstreamError
	return errors.As(err, &u)
}

// ErrCode returns the taxonomy code of err, "internal" for unclassified
// errors and "" for nil.
func ErrCode(err error) string {
	if err == nil {
		return ""
	}
	var c interface{ Code() string }
	if errors.As(err, &c) {
		return c.Code()
	}
	return "internal"
}
