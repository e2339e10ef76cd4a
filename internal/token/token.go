// Package token mints and verifies the HS256 bearer tokens used by the admin
// API. Access and refresh tokens are signed with distinct secrets and carry
// their kind as a claim; verification is a pure function of the token, the
// secret for the expected kind and the clock.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var (
	ErrExpired          = errors.New("token expired")
	ErrMalformed        = errors.New("token malformed")
	ErrWrongKind        = errors.New("token kind mismatch")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

// Claims is the payload of both token kinds; Kind is the discriminant.
// Roles are only embedded in access tokens.
type Claims struct {
	Email string   `json:"email"`
	Kind  Kind     `json:"token_kind"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) validate() error {
	if len(c.AccessSecret) == 0 {
		return errors.New("access token secret is required")
	}
	if len(c.RefreshSecret) == 0 {
		return errors.New("refresh token secret is required")
	}
	if string(c.AccessSecret) == string(c.RefreshSecret) {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.AccessTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive, got %s", c.AccessTTL)
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("refresh token TTL must be positive, got %s", c.RefreshTTL)
	}
	return nil
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) secretFor(kind Kind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return c.AccessSecret, nil
	case KindRefresh:
		return c.RefreshSecret, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrWrongKind, kind)
	}
}
