package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"go-admin-auth/internal/rbac"
)

const minSecretLength = 32

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	JWTIssuer        string
	JWTAudience      string
	LoginRoles       []string

	CORSOrigins    []string
	TrustedProxies []netip.Prefix

	RateLimitRPM             int
	LoginRateLimitAttempts   int
	LoginRateLimitWindow     time.Duration
	RefreshRateLimitAttempts int
	RefreshRateLimitWindow   time.Duration
	RedisURL                 string

	SeedAdminEmail    string
	SeedAdminPassword string

	AuditRetention     time.Duration
	AuditPruneSchedule string

	LogFormat string
	LogLevel  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	accessSecret := strings.TrimSpace(os.Getenv("JWT_ACCESS_SECRET"))
	if accessSecret == "" {
		accessSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	}

	trustedProxies, err := ParseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),

		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 1)),

		JWTAccessSecret:  accessSecret,
		JWTRefreshSecret: strings.TrimSpace(os.Getenv("JWT_REFRESH_SECRET")),
		JWTAccessTTL:     getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:    getDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		JWTIssuer:        getEnv("JWT_ISSUER", "admin-auth"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "admin-app"),
		LoginRoles:       splitCSV(getEnv("LOGIN_ROLES", "admin,editor,reviewer,viewer")),

		CORSOrigins:    splitCSV(getEnv("CORS_ORIGINS", "*")),
		TrustedProxies: trustedProxies,

		RateLimitRPM:             getInt("RATE_LIMIT_RPM", 100),
		LoginRateLimitAttempts:   getInt("LOGIN_RATE_LIMIT_ATTEMPTS", 5),
		LoginRateLimitWindow:     getDuration("LOGIN_RATE_LIMIT_WINDOW", 15*time.Minute),
		RefreshRateLimitAttempts: getInt("REFRESH_RATE_LIMIT_ATTEMPTS", 30),
		RefreshRateLimitWindow:   getDuration("REFRESH_RATE_LIMIT_WINDOW", 15*time.Minute),
		RedisURL:                 strings.TrimSpace(os.Getenv("REDIS_URL")),

		SeedAdminEmail:    strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL")),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),

		AuditRetention:     getDuration("AUDIT_RETENTION", 90*24*time.Hour),
		AuditPruneSchedule: getEnv("AUDIT_PRUNE_SCHEDULE", "@daily"),

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET (or JWT_SECRET) is required")
	}

	if c.JWTRefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if len(c.JWTAccessSecret) < minSecretLength || len(c.JWTRefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT secrets must be at least %d bytes", minSecretLength)
	}

	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.JWTAccessTTL >= c.JWTRefreshTTL {
		return fmt.Errorf("JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.LoginRateLimitAttempts <= 0 || c.LoginRateLimitWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT_ATTEMPTS and LOGIN_RATE_LIMIT_WINDOW must be positive")
	}

	if c.RefreshRateLimitAttempts <= 0 || c.RefreshRateLimitWindow <= 0 {
		return fmt.Errorf("REFRESH_RATE_LIMIT_ATTEMPTS and REFRESH_RATE_LIMIT_WINDOW must be positive")
	}

	for _, raw := range c.LoginRoles {
		if _, ok := rbac.ParseRole(raw); !ok {
			return fmt.Errorf("LOGIN_ROLES: unknown role %q", raw)
		}
	}

	if len(c.LoginRoles) == 0 {
		return fmt.Errorf("LOGIN_ROLES cannot be empty")
	}

	if (c.SeedAdminEmail == "") != (c.SeedAdminPassword == "") {
		return fmt.Errorf("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set together")
	}

	if c.AuditRetention < 0 {
		return fmt.Errorf("AUDIT_RETENTION cannot be negative")
	}

	if _, err := ParseSchedule(c.AuditPruneSchedule); err != nil {
		return fmt.Errorf("AUDIT_PRUNE_SCHEDULE: %w", err)
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be pretty or json")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

// ParseDuration accepts time.ParseDuration syntax plus a whole-day suffix
// ("7d").
func ParseDuration(raw string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	return time.ParseDuration(raw)
}

// ParseSchedule accepts a positive duration ("6h") or a standard cron
// expression ("0 3 * * *", "@daily").
func ParseSchedule(raw string) (cron.Schedule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("schedule is required")
	}

	if interval, err := ParseDuration(raw); err == nil {
		if interval < time.Second {
			return nil, fmt.Errorf("interval must be at least 1s")
		}
		return cron.Every(interval), nil
	}

	return cron.ParseStandard(raw)
}

// ParseTrustedProxies reads a comma separated list of CIDRs or bare
// addresses. An empty list means forwarding headers are never honoured.
func ParseTrustedProxies(raw string) ([]netip.Prefix, error) {
	entries := splitCSV(raw)
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q", entry)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q", entry)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
