package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"go-admin-auth/internal/model"
)

type Issuer struct {
	cfg Config
}

// NewIssuer fails on misconfigured secrets or TTLs; callers treat that as
// fatal at start-up.
func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Issuer{cfg: cfg}, nil
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.cfg.AccessTTL
}

func (i *Issuer) IssueAccessToken(user model.User) (string, time.Time, error) {
	return i.issue(user, KindAccess, i.cfg.now())
}

func (i *Issuer) IssueRefreshToken(user model.User) (string, time.Time, error) {
	return i.issue(user, KindRefresh, i.cfg.now())
}

// IssuePair mints both tokens from one identity snapshot and one clock
// reading.
func (i *Issuer) IssuePair(user model.User) (model.TokenPair, error) {
	now := i.cfg.now()

	accessToken, _, err := i.issue(user, KindAccess, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshToken, _, err := i.issue(user, KindRefresh, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.cfg.AccessTTL.Seconds()),
	}, nil
}

func (i *Issuer) issue(user model.User, kind Kind, now time.Time) (string, time.Time, error) {
	secret, err := i.cfg.secretFor(kind)
	if err != nil {
		return "", time.Time{}, err
	}

	ttl := i.cfg.AccessTTL
	if kind == KindRefresh {
		ttl = i.cfg.RefreshTTL
	}
	expiresAt := now.Add(ttl)

	claims := Claims{
		Email: user.Email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	if kind == KindAccess {
		claims.Roles = user.RoleSet().Strings()
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return signed, expiresAt, nil
}
