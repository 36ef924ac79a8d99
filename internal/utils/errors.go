package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError tags an error with the operation that failed, a caller-safe
// message, and the HTTP status it should surface as.
type AppError struct {
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op string, status int, msg string, err error) *AppError {
	return &AppError{Op: op, Status: status, Msg: msg, Err: err}
}

// StatusOf returns the HTTP status carried by err, or 500 when err is not an
// AppError.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return fmt.Sprintf("%s: %v", appErr.Msg, appErr.Err)
		}
		return appErr.Msg
	}
	return "internal error"
}
