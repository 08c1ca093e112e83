// Package service contains the service layer for the Bhavcopy API
package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nsvirk/bhavcopyapi/pkg/utils/zaplogger"
	"github.com/redis/go-redis/v9"
)

const reloadLockPrefix = "bhavcopy:reload:"

// ReloadLock serializes reloads of the same (date, segment, source) key
type ReloadLock interface {
	// TryLock takes the lock for key. ok is false when another reload holds it.
	TryLock(ctx context.Context, key string) (release func(), ok bool)
}

// NewReloadLock returns a Redis-backed lock when client is set, an in-process lock otherwise
func NewReloadLock(client *redis.Client, ttl time.Duration) ReloadLock {
	mem := NewMemoryLock()
	if client == nil {
		return mem
	}
	return &redisLock{client: client, ttl: ttl, fallback: mem}
}

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLock struct {
	client   *redis.Client
	ttl      time.Duration
	fallback *MemoryLock
}

func (l *redisLock) TryLock(ctx context.Context, key string) (func(), bool) {
	redisKey := reloadLockPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		zaplogger.Warn("Redis lock unavailable, using local lock", zaplogger.Fields{
			"key":   key,
			"error": err.Error(),
		})
		return l.fallback.TryLock(ctx, key)
	}
	if !ok {
		return nil, false
	}

	return func() {
		// the caller's context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
			zaplogger.Warn("Failed to release reload lock", zaplogger.Fields{
				"key":   key,
				"error": err.Error(),
			})
		}
	}, true
}

// MemoryLock is a ReloadLock held in process memory
type MemoryLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLock creates an empty MemoryLock
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{held: make(map[string]struct{})}
}

// TryLock takes key if nobody holds it
func (l *MemoryLock) TryLock(_ context.Context, key string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, false
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true
}
