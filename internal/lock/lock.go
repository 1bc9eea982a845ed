// Package lock provides the Redis run lock that keeps concurrent
// pipeline invocations from processing the same deals twice.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fastlease/deal-ingest/internal/config"
)

const keyPrefix = "deal-ingest:lock:"

// Lock is a Redis-backed mutual exclusion primitive using SETNX with a
// TTL. Each instance carries a unique owner id so an expired lock
// re-acquired elsewhere can never be released by the original holder.
// A nil *Lock is valid and grants every acquisition, which is how runs
// without a configured Redis behave.
type Lock struct {
	client  *redis.Client
	ownerID string
	ttl     time.Duration
}

// New connects to Redis per the config and verifies the connection.
// Returns (nil, nil) when no address is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Lock, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "lock: ping redis")
	}
	ttl := time.Duration(cfg.LockTTLS) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lock{client: client, ownerID: newOwnerID(), ttl: ttl}, nil
}

// NewWithClient wraps an existing Redis client, mainly for tests.
func NewWithClient(client *redis.Client, ttl time.Duration) *Lock {
	return &Lock{client: client, ownerID: newOwnerID(), ttl: ttl}
}

// newOwnerID identifies this holder as hostname:pid:random.
func newOwnerID() string {
	hostname, _ := os.Hostname()
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(buf))
}

// OwnerID returns this instance's holder identifier.
func (l *Lock) OwnerID() string {
	if l == nil {
		return ""
	}
	return l.ownerID
}

// Acquire tries to take the named lock. Returns false when another
// instance already holds it.
func (l *Lock) Acquire(ctx context.Context, name string) (bool, error) {
	if l == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, keyPrefix+name, l.ownerID, l.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "lock: acquire %s", name)
	}
	return ok, nil
}

// releaseScript deletes the lock only when this instance still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release drops the named lock if held by this instance. Calling it on
// an expired or foreign lock is a no-op.
func (l *Lock) Release(ctx context.Context, name string) error {
	if l == nil {
		return nil
	}
	_, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID).Result()
	if err != nil && err != redis.Nil {
		return eris.Wrapf(err, "lock: release %s", name)
	}
	return nil
}

// extendScript refreshes the TTL only when this instance still owns the
// lock.
var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend refreshes the TTL of a held lock. Fails when the lock expired
// and was taken by someone else.
func (l *Lock) Extend(ctx context.Context, name string) error {
	if l == nil {
		return nil
	}
	result, err := extendScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID, l.ttl.Milliseconds()).Result()
	if err != nil {
		return eris.Wrapf(err, "lock: extend %s", name)
	}
	if n, ok := result.(int64); ok && n == 0 {
		return eris.Errorf("lock: %s no longer held by this instance", name)
	}
	return nil
}

// KeepAlive refreshes the named lock at a third of its TTL so runs
// longer than the TTL keep their exclusivity. The returned stop function
// ends the refresh loop and is safe to call more than once. Extension
// failures are logged and the loop keeps trying.
func (l *Lock) KeepAlive(ctx context.Context, name string) (stop func()) {
	if l == nil {
		return func() {}
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, name); err != nil {
					zap.L().Warn("lock: keepalive extend failed",
						zap.String("name", name),
						zap.Error(err),
					)
				}
			}
		}
	}()
	return func() { once.Do(func() { close(done) }) }
}

// Close releases the underlying Redis connection.
func (l *Lock) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}
