package ratelimit

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed           bool  // Whether the request is allowed
	CurrentCount      int64 // Current count in the window
	Limit             int64 // The limit that was checked
	RetryAfterSeconds int64 // Seconds until the limit resets (0 if allowed)
}

// Limiter counts requests per key
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// RedisLimiter is a fixed-window limiter shared by every replica, using Redis + Lua
type RedisLimiter struct {
	redis  *redis.Client
	script *redis.Script
	config Config
	logger Logger
}

// NewRedisLimiter creates a limiter with the embedded Lua script
func NewRedisLimiter(redisClient *redis.Client, cfg Config, logger Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		config: cfg.withDefaults(),
		logger: logger,
	}
}

// Allow counts one request for key
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	redisKey := fmt.Sprintf("rate_limit:%s:%s", r.config.Name, key)

	// Run Lua script atomically
	raw, err := r.script.Run(ctx, r.redis, []string{redisKey}, r.config.Limit, r.config.windowSeconds()).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", redisKey, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	result, err := parseScriptResult(raw)
	if err != nil {
		return nil, err
	}

	if !result.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", redisKey,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds)
	}
	return result, nil
}

// parseScriptResult reads {allowed, current_count, limit, retry_after}
func parseScriptResult(raw interface{}) (*Result, error) {
	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, errors.New("unexpected script result format")
	}

	ints := make([]int64, len(values))
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("unexpected script result element %d: %T", i, v)
		}
		ints[i] = n
	}

	return &Result{
		Allowed:           ints[0] == 1,
		CurrentCount:      ints[1],
		Limit:             ints[2],
		RetryAfterSeconds: ints[3],
	}, nil
}
