package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/freelance-marketplace/internal/goroutine"
	"github.com/ignatzorin/freelance-marketplace/internal/logger"
)

const DefaultLockKey = "settlement:run"

// Locker распределённая блокировка прогона между репликами.
type Locker interface {
	// TryLock возвращает release и true, если блокировка взята.
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// releaseScript удаляет ключ, только если им всё ещё владеет этот прогон.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript продлевает ключ, только если им всё ещё владеет этот прогон.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisLocker создаёт блокировку на SET NX PX. TTL ограничивает время жизни
// ключа, если процесс упал, не освободив его. Пока прогон жив, TTL продлевается.
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) TryLock(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("settlement lock: set %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		l.keepAlive(ctx, token, stop)
	})

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
				logger.Log.WithError(err).Warn("settlement lock: не удалось освободить блокировку")
			}
		})
	}
	return release, true, nil
}

// keepAlive продлевает TTL каждую треть срока, пока прогон держит блокировку.
func (l *RedisLocker) keepAlive(ctx context.Context, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		extended, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
		switch {
		case err != nil:
			logger.Log.WithError(err).Warn("settlement lock: не удалось продлить блокировку")
		case extended == 0:
			logger.Log.WithField("key", l.key).Warn("settlement lock: блокировка потеряна")
			return
		}
	}
}
