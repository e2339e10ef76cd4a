//go:build integration

package integration

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-admin-auth/internal/client"
	"go-admin-auth/internal/config"
	"go-admin-auth/internal/database"
	"go-admin-auth/internal/guard"
	"go-admin-auth/internal/handler"
	"go-admin-auth/internal/metrics"
	"go-admin-auth/internal/middleware"
	"go-admin-auth/internal/ratelimit"
	"go-admin-auth/internal/repository"
	"go-admin-auth/internal/router"
	"go-admin-auth/internal/service"
	"go-admin-auth/internal/token"
)

const (
	adminEmail    = "root@example.com"
	adminPassword = "root-password-123"
)

// newDatabase connects to TEST_DATABASE_URL and empties every table.
func newDatabase(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, database.Config{URL: url, MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx, `TRUNCATE users, audit_entries RESTART IDENTITY`)
	require.NoError(t, err)

	return db
}

type stack struct {
	server *httptest.Server
	users  *repository.UserRepository
	audit  *repository.AuditRepository
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := newDatabase(t)
	userRepo := repository.NewUserRepository(db.Pool)
	auditRepo := repository.NewAuditRepository(db.Pool)

	tokenCfg := token.Config{
		AccessSecret:  []byte("integration-access-secret-0123456789abcd"),
		RefreshSecret: []byte("integration-refresh-secret-0123456789abc"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "admin-auth",
		Audience:      "admin-app",
	}
	issuer, err := token.NewIssuer(tokenCfg)
	require.NoError(t, err)
	verifier, err := token.NewVerifier(tokenCfg)
	require.NoError(t, err)

	loginLimiter, err := ratelimit.NewMemory(ratelimit.Config{Limit: 100, Window: time.Minute})
	require.NoError(t, err)
	refreshLimiter, err := ratelimit.NewMemory(ratelimit.Config{Limit: 100, Window: time.Minute})
	require.NoError(t, err)

	m := metrics.New()
	auditService := service.NewAuditService(auditRepo)
	authService, err := service.NewAuthService(service.AuthServiceDeps{
		Store:          userRepo,
		Issuer:         issuer,
		Verifier:       verifier,
		LoginLimiter:   loginLimiter,
		RefreshLimiter: refreshLimiter,
		Observer:       m,
		Audit:          auditService,
	})
	require.NoError(t, err)

	userService := service.NewUserService(userRepo, auditService)
	require.NoError(t, userService.SeedAdmin(context.Background(), adminEmail, adminPassword))

	cfg := &config.Config{
		CORSOrigins:    []string{"*"},
		RateLimitRPM:   1000,
		RequestTimeout: 10 * time.Second,
	}

	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(guard.New(verifier, m)), m, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Users:  handler.NewUserHandler(userService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler(db),
	}))
	t.Cleanup(server.Close)

	return &stack{server: server, users: userRepo, audit: auditRepo}
}

func (s *stack) login(t *testing.T, email, password string) *client.Client {
	t.Helper()

	c, err := client.New(client.Options{BaseURL: s.server.URL})
	require.NoError(t, err)
	_, err = c.Login(context.Background(), email, password)
	require.NoError(t, err)
	return c
}
