package apierror

import (
	"fmt"
	"net/http"
)

// Error codes exposed on the wire.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeForbidden          = "forbidden"
	CodeUnauthorized       = "unauthorized"
	CodeRateLimited        = "rate_limited"
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeInternal           = "internal_error"
	CodeUnavailable        = "unavailable"
	CodeTimeout            = "request_timeout"
)

type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	// RetryAfterSeconds is sent as Retry-After when positive.
	RetryAfterSeconds int `json:"-"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}

	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code string, message string, details string, status int) *APIError {
	return &APIError{Code: code, Message: message, Details: details, HTTPStatus: status}
}

// InvalidCredentials never says which half of the credentials was wrong.
func InvalidCredentials() *APIError {
	return New(CodeInvalidCredentials, "invalid email or password", "", http.StatusUnauthorized)
}

// Unauthorized carries no detail about why a token was rejected.
func Unauthorized() *APIError {
	return New(CodeUnauthorized, "authentication required", "", http.StatusUnauthorized)
}

func Forbidden(message string) *APIError {
	if message == "" {
		message = "access denied"
	}
	return New(CodeForbidden, message, "", http.StatusForbidden)
}

func RateLimited(retryAfterSeconds int) *APIError {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	err := New(CodeRateLimited, "too many attempts, try again later", "", http.StatusTooManyRequests)
	err.RetryAfterSeconds = retryAfterSeconds
	return err
}

func Validation(message string, field string) *APIError {
	return New(CodeValidation, message, field, http.StatusBadRequest)
}
