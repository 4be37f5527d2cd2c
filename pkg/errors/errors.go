package errors

import (
	"errors"
	"fmt"
)

// Basic error check functions from standard library
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// ErrorCode represents a unique identifier for each error type
type ErrorCode string

// AppError is a domain error tagged with an ErrorCode.
type AppError struct {
	Code ErrorCode
	Err  error
	Data any
}

func (e *AppError) Error() string {
	msg := Message(e.Code)

	if e.Data != nil {
		return fmt.Sprintf("%s: %v", msg, e.Data)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any *AppError carrying the same code, so callers can test
// against a bare New(code) value.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code ErrorCode) *AppError {
	return &AppError{Code: code}
}

func Wrap(code ErrorCode, err error) *AppError {
	return &AppError{Code: code, Err: err}
}

func WithData(code ErrorCode, data any) *AppError {
	return &AppError{Code: code, Data: data}
}

// CodeOf returns the code of the first *AppError in err's chain, or the
// empty code.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
