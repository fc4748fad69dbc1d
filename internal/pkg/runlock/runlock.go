// Package runlock 实现全局单实例运行锁。
//
// 锁保存在 Redis 中：SET NX 写入随机令牌，释放时用 Lua 脚本比较令牌后删除，
// 只有持有者才能释放。锁带 TTL，进程崩溃后会自动过期。
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKey 默认锁键。
const DefaultKey = "adhunter:lock:run"

// ErrNotHeld 释放时令牌不匹配（锁已过期或被强制解除）。
var ErrNotHeld = errors.New("run lock not held")

const releaseLua = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Lock 是基于 Redis 的互斥锁。
type Lock struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	script *redis.Script
}

// New 创建运行锁。
func New(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Lock{rdb: rdb, key: key, ttl: ttl, script: redis.NewScript(releaseLua)}
}

// Key 返回锁键。
func (l *Lock) Key() string { return l.key }

// TryAcquire 尝试获取锁，不等待。
//
// 返回值:
//
//	string: 持有令牌，释放时需要
//	bool: 是否获取成功；false 表示锁被其他实例持有
//	error: Redis 错误
func (l *Lock) TryAcquire(ctx context.Context) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release 释放自己持有的锁。
func (l *Lock) Release(ctx context.Context, token string) error {
	n, err := l.script.Run(ctx, l.rdb, []string{l.key}, token).Int64()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// Held 报告锁当前是否被任意实例持有。
func (l *Lock) Held(ctx context.Context) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("check run lock: %w", err)
	}
	return n > 0, nil
}

// Force 无条件删除锁，返回删除前锁是否存在。
func (l *Lock) Force(ctx context.Context) (bool, error) {
	n, err := l.rdb.Del(ctx, l.key).Result()
	if err != nil {
		return false, fmt.Errorf("force unlock: %w", err)
	}
	return n > 0, nil
}
