package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants one process at a time the right to run a reconciliation cycle.
type Locker interface {
	// Acquire returns a release func when the lease was taken, or ok=false
	// when another holder owns it.
	Acquire(ctx context.Context) (release func(context.Context) error, ok bool, err error)
}

// NoopLocker always grants the lease. Used when Redis is not configured.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context) (func(context.Context) error, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lease re-acquired by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisLocker builds a lease over key. The TTL bounds how long a crashed
// holder can block other processes.
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if l.client == nil {
		return nil, false, errors.New("redis client not configured")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
	}
	return release, true, nil
}
