// Package dedup 记录一次运行中已经成功推送过的商品，避免同一商品在一次运行内被重复通知。
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "adhunter:delivered:"

// Set 是按商品标识去重的集合。
type Set interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
}

// RedisSet 把一次运行的已推送标识保存在一个 Redis SET 中，运行结束后随 TTL 过期。
type RedisSet struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSet 创建运行级去重集合。
func NewRedisSet(rdb *redis.Client, runID string, ttl time.Duration) *RedisSet {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSet{
		rdb: rdb,
		key: keyPrefix + runID,
		ttl: ttl,
	}
}

// Key 返回底层 Redis 键。
func (s *RedisSet) Key() string { return s.key }

func (s *RedisSet) Contains(ctx context.Context, id string) (bool, error) {
	if s == nil || s.rdb == nil || id == "" {
		return false, nil
	}
	ok, err := s.rdb.SIsMember(ctx, s.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("dedup sismember: %w", err)
	}
	return ok, nil
}

func (s *RedisSet) Add(ctx context.Context, id string) error {
	if s == nil || s.rdb == nil || id == "" {
		return nil
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.key, id)
		p.Expire(ctx, s.key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dedup sadd: %w", err)
	}
	return nil
}

// Clear 删除整个集合。
func (s *RedisSet) Clear(ctx context.Context) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("dedup del: %w", err)
	}
	return nil
}

// MemorySet 是进程内实现，用于没有 Redis 的单元测试与一次性命令。
type MemorySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemorySet() *MemorySet {
	return &MemorySet{ids: make(map[string]struct{})}
}

func (s *MemorySet) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *MemorySet) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
	return nil
}
