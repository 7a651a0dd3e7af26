package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrLimiterUnavailable indicates the Redis backend could not be reached.
	ErrLimiterUnavailable = errors.New("login limiter unavailable")
)

// LoginLimiterConfig holds the failed-login thresholds.
type LoginLimiterConfig struct {
	Enabled     bool
	MaxAttempts int
	Window      time.Duration
}

// LoginLimiter counts failed logins per student code in Redis. The counter
// expires Window after the first failure; later failures keep that deadline.
type LoginLimiter struct {
	redis  redis.UniversalClient
	config LoginLimiterConfig
}

// NewLoginLimiter creates a limiter. A nil client disables it.
func NewLoginLimiter(client redis.UniversalClient, cfg LoginLimiterConfig) *LoginLimiter {
	if client == nil || cfg.MaxAttempts <= 0 || cfg.Window <= 0 {
		cfg.Enabled = false
	}
	return &LoginLimiter{redis: client, config: cfg}
}

func (l *LoginLimiter) key(mssv string) string {
	return "login:" + mssv
}

// Blocked reports whether mssv has reached the failure threshold.
func (l *LoginLimiter) Blocked(ctx context.Context, mssv string) (bool, error) {
	if !l.config.Enabled || mssv == "" {
		return false, nil
	}

	count, err := l.redis.Get(ctx, l.key(mssv)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return count >= l.config.MaxAttempts, nil
}

// RecordFailure increments the counter and reports whether the threshold is now reached.
// The key is created with its TTL and incremented in one transaction, so a
// counter can never exist without an expiry.
func (l *LoginLimiter) RecordFailure(ctx context.Context, mssv string) (bool, error) {
	if !l.config.Enabled || mssv == "" {
		return false, nil
	}

	key := l.key(mssv)
	var incr *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.config.Window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return incr.Val() >= int64(l.config.MaxAttempts), nil
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, mssv string) error {
	if !l.config.Enabled || mssv == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(mssv)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}
