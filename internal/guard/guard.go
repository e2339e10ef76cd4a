// Package guard is the request pipeline for protected calls:
// authenticate (bearer header to principal) then authorize (principal, action,
// resource to decision). Both steps are plain functions over strings so they
// can be exercised without an HTTP server.
package guard

import (
	"fmt"
	"log/slog"
	"strings"

	"go-admin-auth/internal/rbac"
	"go-admin-auth/internal/token"
	"go-admin-auth/pkg/apierror"
)

type accessVerifier interface {
	VerifyAccess(tokenString string) (*token.Claims, error)
}

// Observer receives pipeline outcomes; metrics implement it.
type Observer interface {
	ObserveAuthentication(ok bool)
	ObserveDecision(action rbac.Action, resource string, allowed bool)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Roles  rbac.RoleSet
}

type Gate struct {
	verifier accessVerifier
	observer Observer
}

func New(verifier accessVerifier, observer Observer) *Gate {
	return &Gate{verifier: verifier, observer: observer}
}

// Authenticate resolves an Authorization header value. Every failure is the
// same unauthorized error whatever the underlying cause.
func (g *Gate) Authenticate(authorizationHeader string) (Principal, error) {
	raw, ok := BearerToken(authorizationHeader)
	if !ok {
		g.observeAuthentication(false)
		return Principal{}, apierror.Unauthorized()
	}

	claims, err := g.verifier.VerifyAccess(raw)
	if err != nil {
		slog.Debug("access token rejected", "reason", err.Error())
		g.observeAuthentication(false)
		return Principal{}, apierror.Unauthorized()
	}

	g.observeAuthentication(true)
	return Principal{
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  rbac.ParseRoleSet(claims.Roles),
	}, nil
}

func (g *Gate) Authorize(principal Principal, action rbac.Action, resource string) error {
	allowed := rbac.IsAuthorized(principal.Roles, action, resource)
	if g.observer != nil {
		g.observer.ObserveDecision(action, resource, allowed)
	}
	if !allowed {
		return apierror.Forbidden(fmt.Sprintf("cannot %s %s", action, resource))
	}
	return nil
}

// Check runs the whole pipeline.
func (g *Gate) Check(authorizationHeader string, action rbac.Action, resource string) (Principal, error) {
	principal, err := g.Authenticate(authorizationHeader)
	if err != nil {
		return Principal{}, err
	}
	if err := g.Authorize(principal, action, resource); err != nil {
		return Principal{}, err
	}
	return principal, nil
}

func (g *Gate) observeAuthentication(ok bool) {
	if g.observer != nil {
		g.observer.ObserveAuthentication(ok)
	}
}

// BearerToken extracts the credential from "Bearer <token>". The scheme is
// matched case-insensitively; anything but exactly two fields is rejected.
func BearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		return "", false
	}
	return fields[1], true
}
