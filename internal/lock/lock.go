// Package lock provides the "a sync cycle is running" guard.
package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Guard admits one holder at a time. TryAcquire never blocks; it returns
// ok=false when another holder is active.
type Guard interface {
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// Local guards within one process.
type Local struct {
	busy atomic.Bool
}

// NewLocal returns an unheld process-local guard.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(context.Context) (func(), bool, error) {
	if !l.busy.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	return func() { l.busy.Store(false) }, true, nil
}

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of *redis.Client the guard needs.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Redis guards across processes sharing one Redis. The TTL bounds how long a
// crashed holder can block others.
type Redis struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

// NewRedis returns a guard on key. A zero ttl defaults to ten minutes.
func NewRedis(client RedisClient, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

func (r *Redis) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	acquired, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, r.client, []string{r.key}, token).Err()
	}
	return release, true, nil
}

// Chain acquires every guard in order and releases them in reverse. A busy
// guard releases the earlier ones and reports ok=false. A guard that errors
// ends the chain early: the guards already held stay held and the chain
// reports ok=true with the error, so a failing remote backend still leaves
// the local guard in force. An error from the first guard holds nothing.
type Chain []Guard

func (c Chain) TryAcquire(ctx context.Context) (func(), bool, error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, g := range c {
		rel, ok, err := g.TryAcquire(ctx)
		if err != nil {
			if len(releases) == 0 {
				return nil, false, err
			}
			return releaseAll, true, err
		}
		if !ok {
			releaseAll()
			return nil, false, nil
		}
		releases = append(releases, rel)
	}
	return releaseAll, true, nil
}
