package middleware

import (
	"context"
	"net/http"

	"go-admin-auth/internal/guard"
	"go-admin-auth/internal/rbac"
	"go-admin-auth/pkg/apierror"
)

type contextKey string

const principalContextKey contextKey = "auth_principal"

// AuthMiddleware adapts the guard pipeline to chi middleware. Authentication
// always runs before authorization and before any handler.
type AuthMiddleware struct {
	gate *guard.Gate
}

func NewAuthMiddleware(gate *guard.Gate) *AuthMiddleware {
	return &AuthMiddleware{gate: gate}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.gate.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeAPIError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequirePermission authorizes the principal set by RequireAuth; without one
// the request is unauthorized.
func (m *AuthMiddleware) RequirePermission(action rbac.Action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeAPIError(w, apierror.Unauthorized())
				return
			}

			if err := m.gate.Authorize(principal, action, resource); err != nil {
				writeAPIError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, principal guard.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

func PrincipalFromContext(ctx context.Context) (guard.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(guard.Principal)
	return principal, ok
}
