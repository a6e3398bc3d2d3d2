package errorx

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidUpdateMessage is the body clients get when an update names a field
// outside the allowlist.
const InvalidUpdateMessage = "invalid update"

// InvalidUpdatef rejects an update because of a disallowed field set.
func InvalidUpdatef(field, format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidArgument,
		Reason:  ReasonInvalidUpdate,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// MissingFieldErrorf creates a validation error for a required field that was not sent.
func MissingFieldErrorf(field, format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidArgument,
		Reason:  ReasonMissingField,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrongTypeErrorf creates a validation error for a field holding the wrong JSON type.
func WrongTypeErrorf(field, format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidArgument,
		Reason:  ReasonWrongType,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func TooLongErrorf(field, format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidArgument,
		Reason:  ReasonTooLong,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// MalformedErrorf creates a validation error for a payload of the wrong shape.
func MalformedErrorf(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidArgument,
		Reason:  ReasonMalformed,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFoundErrorf creates an Error with type ErrorTypeNotFound and a formatted message
func NotFoundErrorf(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// StoreError wraps an unexpected storage failure. The cause stays server side.
func StoreError(err error, format string, args ...any) *Error {
	return &Error{
		Type:          ErrorTypeInternal,
		Message:       fmt.Sprintf(format, args...),
		OriginalError: errors.WithStack(err),
	}
}

// WithIndex prefixes the message of a validation error with the position of
// the offending item in a bulk payload. Other errors pass through untouched.
func WithIndex(err error, i int) error {
	e, ok := As(err)
	if !ok || e.Type != ErrorTypeInvalidArgument {
		return err
	}
	ee := *e
	ee.Message = fmt.Sprintf("item %d: %s", i, e.Message)
	return &ee
}
