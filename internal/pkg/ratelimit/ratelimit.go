// Package ratelimit 提供基于 Redis 令牌桶的全局限流，用于控制推送通知的发送速率。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"adhunter/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimitTimeout 等待令牌期间上下文结束。
var ErrRateLimitTimeout = errors.New("rate limit wait timeout")

// DefaultKey 推送通知共用的令牌桶键。
const DefaultKey = "adhunter:ratelimit:notify"

// KEYS[1] 桶；ARGV: 速率(个/秒) 容量 当前毫秒 请求数
// 返回 {是否放行, 需要等待的毫秒数}
const tokenBucketLua = `
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

if rate <= 0 or capacity <= 0 then
  return {1, 0}
end

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local last = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - last) * rate / 1000.0)

local wait = 0
local ok = 0
if tokens >= cost then
  tokens = tokens - cost
  ok = 1
else
  wait = math.ceil((cost - tokens) * 1000.0 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], math.ceil(capacity / rate * 2000.0))
return {ok, wait}
`

// Limiter 是分布式令牌桶，所有持有相同 key 的进程共享配额。
type Limiter struct {
	rdb     *redis.Client
	key     string
	rate    float64
	burst   float64
	maxWait time.Duration
	logger  *slog.Logger
	script  *redis.Script
}

// Option 配置 Limiter。
type Option func(*Limiter)

// WithMaxWait 设置最长等待时间，超过后放行并记录警告；0 表示一直等待。
func WithMaxWait(d time.Duration) Option {
	return func(l *Limiter) { l.maxWait = d }
}

// New 创建限流器。rate 或 burst 不大于 0 时不限流。
func New(rdb *redis.Client, logger *slog.Logger, key string, rate, burst float64, opts ...Option) *Limiter {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &Limiter{
		rdb:    rdb,
		key:    key,
		rate:   rate,
		burst:  burst,
		logger: logger,
		script: redis.NewScript(tokenBucketLua),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait 阻塞直到获得一个令牌。
//
// Redis 出错时放行（降级），超过最长等待时间时同样放行；
// 只有上下文结束才返回 ErrRateLimitTimeout。
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rdb == nil || l.rate <= 0 || l.burst <= 0 {
		return nil
	}

	const jitterMax = 10 * time.Millisecond
	start := time.Now()
	var deadline <-chan time.Time
	if l.maxWait > 0 {
		t := time.NewTimer(l.maxWait)
		defer t.Stop()
		deadline = t.C
	}

	for {
		allowed, waitMs, err := l.take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				metrics.RateLimitTimeoutTotal.Inc()
				return ErrRateLimitTimeout
			}
			l.logger.Warn("rate limit check failed, allowing request", slog.String("error", err.Error()))
			return nil
		}
		if allowed {
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		}

		wait := time.Duration(waitMs) * time.Millisecond
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		wait += time.Duration(rand.Int63n(int64(jitterMax)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			metrics.RateLimitTimeoutTotal.Inc()
			return ErrRateLimitTimeout
		case <-deadline:
			timer.Stop()
			l.logger.Warn("rate limit max wait exceeded, allowing request",
				slog.Duration("waited", time.Since(start)))
			metrics.RateLimitWaitDuration.Observe(time.Since(start).Seconds())
			return nil
		case <-timer.C:
		}
	}
}

func (l *Limiter) take(ctx context.Context) (bool, int64, error) {
	res, err := l.script.Run(ctx, l.rdb, []string{l.key}, l.rate, l.burst, time.Now().UnixMilli(), 1).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit eval: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, errors.New("ratelimit invalid result")
	}
	return toInt64(values[0]) == 1, toInt64(values[1]), nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}
