package feed

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes feed-level errors.
type ErrorCode string

const (
	// CodeRequiresLogin indicates the selected feed needs an identity.
	CodeRequiresLogin ErrorCode = "requires_login"

	// CodeSubscribeFailed indicates the source rejected the subscription.
	CodeSubscribeFailed ErrorCode = "subscribe_failed"

	// CodeInternal indicates an unexpected failure inside a transition.
	CodeInternal ErrorCode = "internal"
)

// Error is the feed-level error state surfaced on Orchestrator.Err.
type Error struct {
	Code     ErrorCode
	Selector Selector
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s (feed=%s)", e.Code, e.Message, e.Selector)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewRequiresLoginError creates the error for an authenticated feed
// requested while logged out.
func NewRequiresLoginError(sel Selector) *Error {
	return &Error{
		Code:     CodeRequiresLogin,
		Selector: sel,
		Message:  "feed requires login",
	}
}

// IsRequiresLogin returns true if err is a requires_login feed error.
// Uses errors.As to handle wrapped errors.
func IsRequiresLogin(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == CodeRequiresLogin
	}
	return false
}
