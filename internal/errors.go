package internal

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrState      = errors.New("invalid state")
	ErrTransient  = errors.New("transient store error")
)

// Code is the machine-readable reason attached to conflict and state errors.
type Code string

const (
	CodeActiveSessionExists  Code = "ACTIVE_SESSION_EXISTS"
	CodeActivePomodoroExists Code = "ACTIVE_POMODORO_EXISTS"
	CodeAlreadyEnded         Code = "ALREADY_ENDED"
	CodeNotRunning           Code = "NOT_RUNNING"
)

// Error is the typed error returned by the tracker, the pomodoro engine and
// the stores. Kind is one of the Err* sentinels so callers can use errors.Is.
type Error struct {
	Kind error
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := e.Kind.Error()
	if e.Code != "" {
		s += " (" + string(e.Code) + ")"
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

func (e *Error) Unwrap() error { return e.Kind }

func ValidationErrorf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func ConflictError(code Code, msg string) error {
	return &Error{Kind: ErrConflict, Code: code, Msg: msg}
}

func NotFoundErrorf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func StateErrorf(code Code, format string, args ...any) error {
	return &Error{Kind: ErrState, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err, or "" when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AppError is the error body of an API response.
type AppError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func NewAppError(status int, msg string) *AppError {
	return &AppError{Status: status, Message: msg}
}
