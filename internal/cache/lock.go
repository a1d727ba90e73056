package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// LockPrefix 锁键前缀
const LockPrefix = "lock:"

// releaseScript 只删除仍由自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire 获取带过期时间的互斥锁。锁已被持有时返回 types.ErrAnalysisInFlight。
// 返回的 release 只会释放本次获取的锁，过期后被他人重新获取的锁不受影响。
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}

	lockKey := LockPrefix + key
	token := uuid.NewString()
	ok, err := m.redis.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, types.NewError(types.ErrAnalysisInFlight, "analysis already running for "+key).
			WithHTTPStatus(409).WithRetryable(true)
	}

	m.logger.Debug("lock acquired", zap.String("key", lockKey), zap.Duration("ttl", ttl))
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, m.redis, []string{lockKey}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
