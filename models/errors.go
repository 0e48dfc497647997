package models

import (
	"errors"
	"fmt"
)

// ErrorCode classifies control-plane failures.
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NotFound"
	CodeAlreadyExists    ErrorCode = "AlreadyExists"
	CodeValidation       ErrorCode = "ValidationError"
	CodeRuntimeTransient ErrorCode = "RuntimeTransient"
	CodeRuntimeFatal     ErrorCode = "RuntimeFatal"
	CodeInternal         ErrorCode = "Internal"
)

// StatusError is a typed control-plane error. The API layer maps codes
// straight onto HTTP status codes.
type StatusError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *StatusError) Error() string { return e.Message }

func (e *StatusError) Unwrap() error { return e.Err }

func NewNotFound(kind, namespace, name string) *StatusError {
	return &StatusError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s/%s not found", kind, namespace, name),
	}
}

func NewAlreadyExists(kind, namespace, name string) *StatusError {
	return &StatusError{
		Code:    CodeAlreadyExists,
		Message: fmt.Sprintf("%s %s/%s already exists", kind, namespace, name),
	}
}

func NewValidation(format string, args ...any) *StatusError {
	return &StatusError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewInternal(err error) *StatusError {
	return &StatusError{Code: CodeInternal, Message: err.Error(), Err: err}
}

func codeOf(err error) ErrorCode {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func IsNotFound(err error) bool      { return codeOf(err) == CodeNotFound }
func IsAlreadyExists(err error) bool { return codeOf(err) == CodeAlreadyExists }
func IsValidation(err error) bool    { return codeOf(err) == CodeValidation }
