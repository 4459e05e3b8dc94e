package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
)

// ErrorKind classifies service errors so HTTP handlers can map them to a
// status code without inspecting messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindInvalidTransition
	KindConflict
	KindTransient
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Transient(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the taxonomy kind of err, KindInternal for anything that is
// not an AppError.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Retryable reports whether the caller may retry with fresh state.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindTransient:
		return true
	}
	return false
}

func statusFor(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps a service error to an HTTP response. Internal errors are
// logged server side and never leak their cause to the caller.
func WriteError(w http.ResponseWriter, err error) {
	kind := KindInternal
	message := "internal server error"

	var appErr *AppError
	if errors.As(err, &appErr) {
		kind = appErr.Kind
		if kind != KindInternal {
			message = appErr.Message
		}
	}

	if kind == KindInternal {
		log.Printf("internal error: %v", err)
	}

	WriteJSON(w, statusFor(kind), map[string]string{
		"error": message,
		"kind":  kind.String(),
	})
}
