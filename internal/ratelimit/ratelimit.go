// Package ratelimit throttles authentication attempts per client key with a
// sliding window log: at most Limit attempts within any Window.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted attempt leaves the window.
	ResetAt time.Time
}

// RetryAfter is the wait before another attempt can succeed, rounded up to
// whole seconds.
func (d Decision) RetryAfter(now time.Time) int {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	seconds := int((wait + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

type Limiter interface {
	// CheckAndRecordAttempt counts an attempt for key when it is allowed.
	// Blocked attempts are not recorded.
	CheckAndRecordAttempt(ctx context.Context, key string) (Decision, error)
}

type Config struct {
	Limit  int
	Window time.Duration
	// Prefix namespaces keys, e.g. "login" or "refresh".
	Prefix string
	Now    func() time.Time
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.Window <= 0 {
		return errors.New("rate limit window must be positive")
	}
	return nil
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c Config) key(key string) string {
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + ":" + key
}
