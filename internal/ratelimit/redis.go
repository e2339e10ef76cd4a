package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// The window is a sorted set of attempt timestamps (ms). Pruning, counting
// and recording run in one script so concurrent instances cannot over-admit.
var slidingWindowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
  count = count + 1
  allowed = 1
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {allowed, count, oldest[2]}
`)

// Redis shares the attempt log between API instances.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
}

func NewRedis(client redis.UniversalClient, cfg Config) (*Redis, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "ratelimit"
	} else {
		cfg.Prefix = "ratelimit:" + cfg.Prefix
	}
	return &Redis{client: client, cfg: cfg}, nil
}

func (r *Redis) CheckAndRecordAttempt(ctx context.Context, key string) (Decision, error) {
	now := r.cfg.now()
	cutoff := now.Add(-r.cfg.Window)

	raw, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.cfg.key(key)},
		now.UnixMilli(),
		cutoff.UnixMilli(),
		r.cfg.Limit,
		uuid.NewString(),
		r.cfg.Window.Milliseconds(),
	).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run sliding window script: %w", err)
	}
	if len(raw) < 2 {
		return Decision{}, fmt.Errorf("unexpected sliding window reply of %d elements", len(raw))
	}

	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	var oldestRaw string
	if len(raw) > 2 {
		oldestRaw, _ = raw[2].(string)
	}

	resetAt := now.Add(r.cfg.Window)
	if oldestRaw != "" {
		oldestMillis, err := strconv.ParseFloat(oldestRaw, 64)
		if err != nil {
			return Decision{}, fmt.Errorf("parse oldest attempt score %q: %w", oldestRaw, err)
		}
		resetAt = time.UnixMilli(int64(oldestMillis)).Add(r.cfg.Window)
	}

	remaining := r.cfg.Limit - int(count)
	if remaining < 0 || allowed == 0 {
		remaining = 0
	}

	return Decision{Allowed: allowed == 1, Remaining: remaining, ResetAt: resetAt}, nil
}
