package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accessSecret  = "access-secret-0123456789abcdef0123456789"
	refreshSecret = "refresh-secret-0123456789abcdef012345678"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_ACCESS_SECRET", accessSecret)
	t.Setenv("JWT_REFRESH_SECRET", refreshSecret)
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/admin")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SEED_ADMIN_EMAIL", "")
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	t.Setenv("AUDIT_RETENTION", "")
	t.Setenv("AUDIT_PRUNE_SCHEDULE", "")
	t.Setenv("TRUSTED_PROXIES", "")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, 5, cfg.LoginRateLimitAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LoginRateLimitWindow)
	assert.Equal(t, 30, cfg.RefreshRateLimitAttempts)
	assert.Equal(t, []string{"admin", "editor", "reviewer", "viewer"}, cfg.LoginRoles)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 90*24*time.Hour, cfg.AuditRetention)
	assert.Equal(t, "@daily", cfg.AuditPruneSchedule)
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("JWT_REFRESH_TTL", "30d")
	t.Setenv("LOGIN_ROLES", "ADMIN, editor")
	t.Setenv("CORS_ORIGINS", "https://admin.example.com, https://example.com")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.JWTAccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.JWTRefreshTTL)
	assert.Equal(t, []string{"ADMIN", "editor"}, cfg.LoginRoles)
	assert.Equal(t, []string{"https://admin.example.com", "https://example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.10/32"),
	}, cfg.TrustedProxies)
}

func TestLegacySecretFallback(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_ACCESS_SECRET", "")
	t.Setenv("JWT_SECRET", accessSecret)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, accessSecret, cfg.JWTAccessSecret)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing access secret", env: map[string]string{"JWT_ACCESS_SECRET": ""}},
		{name: "missing refresh secret", env: map[string]string{"JWT_REFRESH_SECRET": ""}},
		{name: "identical secrets", env: map[string]string{"JWT_REFRESH_SECRET": accessSecret}},
		{name: "short secret", env: map[string]string{"JWT_ACCESS_SECRET": "short"}},
		{name: "missing database", env: map[string]string{"DATABASE_URL": ""}},
		{name: "access outlives refresh", env: map[string]string{"JWT_ACCESS_TTL": "8d"}},
		{name: "unknown login role", env: map[string]string{"LOGIN_ROLES": "admin,owner"}},
		{name: "zero login attempts", env: map[string]string{"LOGIN_RATE_LIMIT_ATTEMPTS": "0"}},
		{name: "seed email without password", env: map[string]string{"SEED_ADMIN_EMAIL": "root@example.com"}},
		{name: "unknown log format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "bad prune schedule", env: map[string]string{"AUDIT_PRUNE_SCHEDULE": "every tuesday"}},
		{name: "bad trusted proxy", env: map[string]string{"TRUSTED_PROXIES": "10.0.0.0/33"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for key, value := range tt.env {
				t.Setenv(key, value)
			}

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	d, err := ParseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, d)

	d, err = ParseDuration("90s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("xd")
	require.Error(t, err)
}

func TestParseTrustedProxies(t *testing.T) {
	t.Parallel()

	prefixes, err := ParseTrustedProxies("10.1.2.3/8, ::ffff:172.16.0.1, fd00::/8")
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.1/32"),
		netip.MustParsePrefix("fd00::/8"),
	}, prefixes)

	prefixes, err = ParseTrustedProxies("")
	require.NoError(t, err)
	assert.Empty(t, prefixes)

	_, err = ParseTrustedProxies("proxy.internal")
	require.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	from := time.Date(2026, 3, 14, 10, 30, 0, 0, time.Local)

	every, err := ParseSchedule("6h")
	require.NoError(t, err)
	assert.True(t, from.Add(6*time.Hour).Equal(every.Next(from)))

	daily, err := ParseSchedule("@daily")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.Local).Equal(daily.Next(from)))

	nightly, err := ParseSchedule("0 3 * * *")
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 15, 3, 0, 0, 0, time.Local).Equal(nightly.Next(from)))

	_, err = ParseSchedule("500ms")
	require.Error(t, err)
	_, err = ParseSchedule("")
	require.Error(t, err)
}
