package client

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotAuthenticated is returned without contacting the server when no
	// session exists.
	ErrNotAuthenticated = errors.New("client: not authenticated")
	// ErrSessionExpired means the session could not be renewed and the
	// caller has to log in again.
	ErrSessionExpired = errors.New("client: session expired")
)

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, e.Code, e.Message)
}
