package flow

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes configuration and programming errors.
type ErrorCode string

const (
	// ErrCodeUnknownFlowType indicates a definition that is neither a
	// complete stateful nor a complete stateless flow.
	ErrCodeUnknownFlowType ErrorCode = "UNKNOWN_FLOW_TYPE"

	// ErrCodeDuplicateFlow indicates two definitions share a name.
	ErrCodeDuplicateFlow ErrorCode = "DUPLICATE_FLOW"

	// ErrCodeInvalidInitialState indicates an initial state without a string "is".
	ErrCodeInvalidInitialState ErrorCode = "INVALID_INITIAL_STATE"

	// ErrCodeMissingIdentity indicates no identity function (or an empty key)
	// for the event a stateful flow was selected for.
	ErrCodeMissingIdentity ErrorCode = "MISSING_IDENTITY"

	// ErrCodeInvalidOperation indicates an API misuse by flow or runtime code.
	ErrCodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// ErrCodeUnknownCommand indicates a command that the write model does not define.
	ErrCodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
)

// Error is a configuration or programming error. These are never absorbed by
// the transition and reaction call sites.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Flow names the affected flow, if any.
	Flow string

	// Event is the fully qualified event name, if any.
	Event string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Flow != "" && e.Event != "":
		return fmt.Sprintf("%s: %s (flow=%s, event=%s)", e.Code, e.Message, e.Flow, e.Event)
	case e.Flow != "":
		return fmt.Sprintf("%s: %s (flow=%s)", e.Code, e.Message, e.Flow)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsConfigError reports whether err is (or wraps) a *Error.
func IsConfigError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// HasCode reports whether err is (or wraps) a *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

func newError(code ErrorCode, flow, event, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Flow:    flow,
		Event:   event,
	}
}

// InvalidOperation builds an ErrCodeInvalidOperation error for flow.
func InvalidOperation(flow, format string, args ...any) *Error {
	return newError(ErrCodeInvalidOperation, flow, "", format, args...)
}
