package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"go-admin-auth/internal/config"
	"go-admin-auth/internal/database"
	"go-admin-auth/internal/guard"
	"go-admin-auth/internal/handler"
	"go-admin-auth/internal/logger"
	"go-admin-auth/internal/metrics"
	"go-admin-auth/internal/middleware"
	"go-admin-auth/internal/ratelimit"
	"go-admin-auth/internal/repository"
	"go-admin-auth/internal/router"
	"go-admin-auth/internal/service"
	"go-admin-auth/internal/token"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.SetDefault(logger.New(os.Stdout, cfg.LogFormat, cfg.LogLevel))

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &App{cleanupFuncs: []func(){db.Close}}

	if err := db.EnsureSchema(context.Background()); err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}

	userRepo := repository.NewUserRepository(db.Pool)
	auditRepo := repository.NewAuditRepository(db.Pool)
	slog.Info("database ready")

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		client, err := connectRedis(context.Background(), cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		redisClient = client
		a.cleanupFuncs = append(a.cleanupFuncs, func() { _ = client.Close() })
		slog.Info("rate limiter backed by Redis")
	}

	loginLimiter, refreshLimiter, err := newLimiters(cfg, redisClient)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	tokenCfg := token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
		Issuer:        cfg.JWTIssuer,
		Audience:      cfg.JWTAudience,
	}
	issuer, err := token.NewIssuer(tokenCfg)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	verifier, err := token.NewVerifier(tokenCfg)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	m := metrics.New()
	auditService := service.NewAuditService(auditRepo)

	authService, err := service.NewAuthService(service.AuthServiceDeps{
		Store:          userRepo,
		Issuer:         issuer,
		Verifier:       verifier,
		LoginLimiter:   loginLimiter,
		RefreshLimiter: refreshLimiter,
		LoginRoles:     cfg.LoginRoles,
		Observer:       m,
		Audit:          auditService,
	})
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	userService := service.NewUserService(userRepo, auditService)
	if cfg.SeedAdminEmail != "" {
		if err := userService.SeedAdmin(context.Background(), cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("failed to seed admin: %w", err)
		}
	}

	if cfg.AuditRetention > 0 {
		schedule, err := config.ParseSchedule(cfg.AuditPruneSchedule)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("invalid audit prune schedule: %w", err)
		}
		retentionCtx, cancelRetention := context.WithCancel(context.Background())
		go auditService.RunRetention(retentionCtx, schedule, cfg.AuditRetention)
		a.cleanupFuncs = append(a.cleanupFuncs, cancelRetention)
	}

	authMiddleware := middleware.NewAuthMiddleware(guard.New(verifier, m))

	appRouter := router.New(cfg, authMiddleware, m, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Users:  handler.NewUserHandler(userService),
		Audit:  handler.NewAuditHandler(auditService),
		Health: handler.NewHealthHandler(db),
	})

	a.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return a, nil
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// newLimiters builds the login and refresh limiters, sharing Redis when a
// client is given and falling back to process memory otherwise.
func newLimiters(cfg *config.Config, client redis.UniversalClient) (ratelimit.Limiter, ratelimit.Limiter, error) {
	loginCfg := ratelimit.Config{
		Limit:  cfg.LoginRateLimitAttempts,
		Window: cfg.LoginRateLimitWindow,
		Prefix: "login",
	}
	refreshCfg := ratelimit.Config{
		Limit:  cfg.RefreshRateLimitAttempts,
		Window: cfg.RefreshRateLimitWindow,
		Prefix: "refresh",
	}

	build := func(c ratelimit.Config) (ratelimit.Limiter, error) {
		if client != nil {
			return ratelimit.NewRedis(client, c)
		}
		return ratelimit.NewMemory(c)
	}

	login, err := build(loginCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize login limiter: %w", err)
	}
	refresh, err := build(refreshCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize refresh limiter: %w", err)
	}

	return login, refresh, nil
}

func (a *App) cleanup() {
	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		a.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)
	a.cleanup()
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	slog.Info("server stopped")
	return nil
}
