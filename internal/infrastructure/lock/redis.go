package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis 分布式账户锁
// ============================================================================
//
// 加锁：SET ledger:lock:account:<number> <token> NX PX ttl
// 释放：Lua 脚本比较 token 后再 DEL，过期后被他人拿到的锁不会被误删
//
// TTL 只是进程崩溃时的兜底；余额写入仍然走数据库的 CAS 校验。

const accountLockPrefix = "ledger:lock:account:"

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	wait          time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl, wait, retryInterval time.Duration) *RedisLocker {
	if retryInterval <= 0 {
		retryInterval = 50 * time.Millisecond
	}
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		wait:          wait,
		retryInterval: retryInterval,
	}
}

func AccountLockKey(accountNumber string) string {
	return accountLockPrefix + accountNumber
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	redisKey := AccountLockKey(key)
	token := uuid.NewString()

	var deadline <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrLockUnavailable, key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, fmt.Errorf("%w: %s", ErrLockFailed, key)
		case <-time.After(l.retryInterval):
		}
	}

	return once(func() {
		// 请求 ctx 可能已取消，释放锁用独立的短超时
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := unlockScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
			slog.Warn("release account lock failed", "component", "lock", "key", redisKey, "err", err)
		}
	}), nil
}
