package timer

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")
var ErrLockNotHeld = errors.New("lock not held")

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker lets only one instance run a scheduled job at a time.
// It satisfies gocron.Locker.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

var _ gocron.Locker = (*RedisLocker)(nil)

func (l *RedisLocker) Lock(ctx context.Context, key string) (gocron.Lock, error) {
	value := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, value, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &redisLock{client: l.client, key: l.prefix + key, value: value}, nil
}

type redisLock struct {
	client *redis.Client
	key    string
	value  string
}

// Unlock releases the lock only if this holder still owns it.
func (l *redisLock) Unlock(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
