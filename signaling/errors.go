package signaling

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeUnauthorized     Code = "unauthorized"
	CodeForbidden        Code = "forbidden"
	CodeNotFound         Code = "not_found"
	CodeInvalidArgument  Code = "invalid_argument"
	CodeBusy             Code = "busy"
	CodeTransportFailure Code = "target_offline"
	CodeInternal         Code = "internal"
)

// Error is a failure scoped to the requesting connection.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrUnauthorized  = &Error{Code: CodeUnauthorized, Message: "Unauthorized"}
	ErrTargetOffline = &Error{Code: CodeTransportFailure, Message: "target offline"}
)

// CodeOf returns the code carried by err, or CodeInternal for anything that
// is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// PublicMessage is what may be shown to the client for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}
