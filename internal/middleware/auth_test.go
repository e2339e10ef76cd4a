package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-admin-auth/internal/guard"
	"go-admin-auth/internal/model"
	"go-admin-auth/internal/rbac"
	"go-admin-auth/internal/token"
)

func newAuthMiddleware(t *testing.T) (*AuthMiddleware, *token.Issuer) {
	t.Helper()

	cfg := token.Config{
		AccessSecret:  []byte("access-secret-0123456789abcdef0123456789"),
		RefreshSecret: []byte("refresh-secret-0123456789abcdef012345678"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
	issuer, err := token.NewIssuer(cfg)
	require.NoError(t, err)
	verifier, err := token.NewVerifier(cfg)
	require.NoError(t, err)

	return NewAuthMiddleware(guard.New(verifier, nil)), issuer
}

func TestAuthMiddleware(t *testing.T) {
	mw, issuer := newAuthMiddleware(t)

	editor := model.User{ID: "editor-1", Email: "editor@example.com", Roles: []rbac.Role{rbac.RoleEditor}, Active: true}
	pair, err := issuer.IssuePair(editor)
	require.NoError(t, err)

	var seen guard.Principal
	protected := mw.RequireAuth(mw.RequirePermission(rbac.ActionCreate, "blogPost")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	))
	adminOnly := mw.RequireAuth(mw.RequirePermission(rbac.ActionDelete, "users")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}),
	))

	tests := []struct {
		name    string
		handler http.Handler
		header  string
		status  int
		code    string
	}{
		{name: "allowed", handler: protected, header: "Bearer " + pair.AccessToken, status: http.StatusNoContent},
		{name: "missing header", handler: protected, header: "", status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "refresh token as bearer", handler: protected, header: "Bearer " + pair.RefreshToken, status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "wrong scheme", handler: protected, header: "Basic " + pair.AccessToken, status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "insufficient role", handler: adminOnly, header: "Bearer " + pair.AccessToken, status: http.StatusForbidden, code: "forbidden"},
		{name: "invalid token never reaches authorization", handler: adminOnly, header: "Bearer junk", status: http.StatusUnauthorized, code: "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/things", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			tt.handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), `"code":"`+tt.code+`"`)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}

	assert.Equal(t, "editor-1", seen.UserID)
	assert.True(t, seen.Roles.Has(rbac.RoleEditor))
}

func TestRequirePermissionWithoutPrincipal(t *testing.T) {
	mw, _ := newAuthMiddleware(t)
	handler := mw.RequirePermission(rbac.ActionRead, "users")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
