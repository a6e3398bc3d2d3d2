package errorx

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorType string

const (
	ErrorTypeUnspecified     = ErrorType("")
	ErrorTypeInvalidArgument = ErrorType("INVALID_ARGUMENT")
	ErrorTypeNotFound        = ErrorType("NOT_FOUND")
	ErrorTypeInternal        = ErrorType("INTERNAL")
)

func (t ErrorType) String() string {
	return string(t)
}

// Reason narrows an INVALID_ARGUMENT error down to what was wrong with the payload.
type Reason string

const (
	ReasonInvalidUpdate = Reason("invalid_update")
	ReasonMissingField  = Reason("missing_field")
	ReasonWrongType     = Reason("wrong_type")
	ReasonTooLong       = Reason("too_long")
	ReasonMalformed     = Reason("malformed_payload")
)

type Error struct {
	Type    ErrorType `json:"type"`
	Reason  Reason    `json:"reason,omitempty"`
	Field   string    `json:"field,omitempty"`
	Message string    `json:"error"`

	OriginalError error `json:"-"` // Not returned to clients
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.OriginalError
}

// As returns the *Error carried by err, looking through wrapping.
func As(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) && e.Type != ErrorTypeUnspecified {
		return e, true
	}
	return nil, false
}

func IsInvalidArgumentError(err error) bool {
	e, ok := As(err)
	return ok && e.Type == ErrorTypeInvalidArgument
}

func IsNotFoundError(err error) bool {
	e, ok := As(err)
	return ok && e.Type == ErrorTypeNotFound
}

func IsInternalError(err error) bool {
	e, ok := As(err)
	return ok && e.Type == ErrorTypeInternal
}

// HasReason reports whether err is a validation error with the given reason.
func HasReason(err error, reason Reason) bool {
	e, ok := As(err)
	return ok && e.Type == ErrorTypeInvalidArgument && e.Reason == reason
}
