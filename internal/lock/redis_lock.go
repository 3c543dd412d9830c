package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// releaseScript deletes the lease only if this holder still owns it, so a
// holder that outlived its TTL cannot release somebody else's lease.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLock implements Lock with an atomic SET NX PX on a single key.
type RedisLock struct {
	client rueidis.Client
	key    string

	mu    sync.Mutex
	owner string
}

// NewRedisLock creates a lease lock on the given key.
func NewRedisLock(client rueidis.Client, key string) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
	}
}

// TryAcquire attempts to take the lease for ttl. Returns false without
// blocking when the lease is already held and unexpired.
func (l *RedisLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	owner := uuid.NewString()

	cmd := l.client.B().Set().Key(l.key).Value(owner).Nx().Px(ttl).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil // lease held elsewhere
		}

		return false, err
	}

	l.mu.Lock()
	l.owner = owner
	l.mu.Unlock()

	return true, nil
}

// Release drops the lease if this instance still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	owner := l.owner
	l.owner = ""
	l.mu.Unlock()

	if owner == "" {
		return nil
	}

	cmd := l.client.B().Eval().Script(releaseScript).Numkeys(1).Key(l.key).Arg(owner).Build()

	return l.client.Do(ctx, cmd).Error()
}
