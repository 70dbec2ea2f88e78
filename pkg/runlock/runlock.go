// Package runlock provides a Redis-backed single-flight lock for batch jobs.
// Only one holder may run a named job at a time; the TTL bounds how long a
// crashed run can keep the lock.
package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lock acquires and releases named batch locks.
type Lock struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a Lock backed by the given Redis connection.
func New(client *redis.Client, logger *zap.Logger) *Lock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lock{client: client, logger: logger}
}

// Handle releases a held lock.
type Handle struct {
	lock  *Lock
	key   string
	token string
}

// Acquire tries to take the named lock. It returns held=false without error
// when another run already holds it.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (*Handle, bool, error) {
	key := "runlock:" + name
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		l.logger.Info("lock held by another run", zap.String("lock", name))
		return nil, false, nil
	}

	l.logger.Debug("lock acquired",
		zap.String("lock", name),
		zap.Duration("ttl", ttl))
	return &Handle{lock: l, key: key, token: token}, true, nil
}

// releaseScript deletes the key only when this handle still owns it, so a run
// that outlived its TTL cannot release a newer holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release gives the lock back.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if _, err := releaseScript.Run(ctx, h.lock.client, []string{h.key}, h.token).Result(); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	h.lock.logger.Debug("lock released", zap.String("key", h.key))
	return nil
}
