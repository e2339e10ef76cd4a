package token

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type Verifier struct {
	cfg Config
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify checks the signature with the secret for expected, the expiry
// against the configured clock, and that the embedded kind equals expected.
// Errors are one of ErrExpired, ErrMalformed, ErrWrongKind or
// ErrSignatureInvalid.
func (v *Verifier) Verify(tokenString string, expected Kind) (*Claims, error) {
	secret, err := v.cfg.secretFor(expected)
	if err != nil {
		return nil, err
	}

	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.cfg.now),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		options = append(options, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrMalformed
	}

	if claims.Kind != expected {
		return nil, fmt.Errorf("%w: want %s, got %q", ErrWrongKind, expected, claims.Kind)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}

	return claims, nil
}

func (v *Verifier) VerifyAccess(tokenString string) (*Claims, error) {
	return v.Verify(tokenString, KindAccess)
}

func (v *Verifier) VerifyRefresh(tokenString string) (*Claims, error) {
	return v.Verify(tokenString, KindRefresh)
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
