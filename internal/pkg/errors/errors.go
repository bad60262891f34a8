package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeQuotaExhausted = "QUOTA_EXHAUSTED"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeUnavailable    = "SERVICE_UNAVAILABLE"
)

// Error is a classified failure. Two errors are equal under errors.Is when
// their codes match, so wrapped sentinels keep their class.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidInput    = &Error{Code: ErrCodeInvalidInput, Message: "invalid input"}
	ErrUnauthenticated = &Error{Code: ErrCodeUnauthorized, Message: "authentication required"}
	ErrForbidden       = &Error{Code: ErrCodeForbidden, Message: "insufficient permissions"}
	ErrNotFound        = &Error{Code: ErrCodeNotFound, Message: "resource not found"}
	ErrConflict        = &Error{Code: ErrCodeConflict, Message: "conflict"}
	ErrExhausted       = &Error{Code: ErrCodeQuotaExhausted, Message: "quota exhausted"}
	ErrUnavailable     = &Error{Code: ErrCodeUnavailable, Message: "service unavailable"}
)

// Wrap returns an error of the same class as kind with a specific message.
func Wrap(kind *Error, format string, args ...interface{}) error {
	return &Error{Code: kind.Code, Message: fmt.Sprintf(format, args...)}
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

func StatusFor(code string) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict, ErrCodeQuotaExhausted:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
		Details: details,
	})
}

// Write maps err onto the response. Unclassified errors are logged and
// reported as internal errors without leaking their text.
func Write(w http.ResponseWriter, err error) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		WriteError(w, StatusFor(appErr.Code), appErr.Code, appErr.Message, nil)
		return
	}

	log.Error().Err(err).Msg("request failed")
	WriteError(w, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", nil)
}
