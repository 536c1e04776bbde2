package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/parkspot/internal/domain"
	"github.com/diagnosis/parkspot/pkg/logger"
)

// ErrorResponse is the body of every failed request. Clients show Error verbatim.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const genericMessage = "Something went wrong!"

// Common error codes
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	CodeInternalError      = "INTERNAL_ERROR"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// FromError maps a service failure onto a status code and message. Anything
// that is not a typed domain error is logged and hidden behind a generic 500.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrBadCredentials) {
		BadCredentials(w, domain.ErrBadCredentials.Msg)
		return
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		logger.ErrorContext(r.Context(), "Unhandled error", "path", r.URL.Path, "error", err)
		InternalError(w, genericMessage)
		return
	}

	switch de.Kind {
	case domain.KindValidation:
		BadRequest(w, de.Msg)
	case domain.KindAuth:
		Unauthorized(w, de.Msg)
	case domain.KindAuthorization:
		Forbidden(w, de.Msg)
	case domain.KindNotFound:
		NotFound(w, de.Msg)
	case domain.KindConflict:
		Conflict(w, de.Msg)
	default:
		logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "kind", de.Kind.String(), "error", err)
		InternalError(w, genericMessage)
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func BadCredentials(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidCredentials)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}
