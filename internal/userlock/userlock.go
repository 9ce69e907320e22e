// Package userlock serializes imports per user.
//
// A second import for a user whose lock is held fails fast with
// [shared.ErrImportInProgress] rather than waiting.
package userlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/histx/internal/shared"
)

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker grants at most one lease per user at a time.
type Locker interface {
	Acquire(ctx context.Context, userID string) (Lease, error)
}

// Local is an in-process [Locker].
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal creates an empty in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(ctx context.Context, userID string) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[userID]; ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrImportInProgress, userID)
	}
	l.held[userID] = struct{}{}
	return &localLease{locker: l, userID: userID}, nil
}

// Held reports whether userID currently holds a lease.
func (l *Local) Held(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[userID]
	return ok
}

type localLease struct {
	locker *Local
	userID string
	once   sync.Once
}

func (ll *localLease) Release(context.Context) error {
	ll.once.Do(func() {
		ll.locker.mu.Lock()
		delete(ll.locker.held, ll.userID)
		ll.locker.mu.Unlock()
	})
	return nil
}

// KeyPrefix namespaces lock keys in Redis.
const KeyPrefix = "histx:lock:import:"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// DefaultTTL applies when a Redis locker is built without a ttl.
const DefaultTTL = 30 * time.Minute

// Redis is a [Locker] shared by every process using the same Redis.
//
// Locks expire after ttl so a crashed importer cannot block a user forever.
// A held lease extends itself every third of ttl until it is released.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Acquire(ctx context.Context, userID string) (Lease, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}

	lease := &redisLease{
		client: r.client,
		key:    KeyPrefix + userID,
		token:  hex.EncodeToString(b),
		ttl:    r.ttl,
		done:   make(chan struct{}),
	}
	ok, err := r.client.SetNX(ctx, lease.key, lease.token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lease.key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrImportInProgress, userID)
	}

	go lease.keepAlive()
	return lease, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	done chan struct{}
	once sync.Once
	err  error
}

// Extend resets the expiry while the key still carries this lease's token.
func (l *redisLease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrLockLost, l.key)
	}
	return nil
}

// keepAlive extends the lease until it is released or lost.
// Transient Redis errors are retried on the next tick.
func (l *redisLease) keepAlive() {
	interval := l.ttl / 3
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := l.Extend(ctx)
			cancel()
			if errors.Is(err, shared.ErrLockLost) {
				return
			}
		}
	}
}

// Release deletes the key only while it still carries this lease's token.
// A lease that expired before release reports [shared.ErrLockLost].
func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		close(l.done)

		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
		switch {
		case err != nil:
			l.err = fmt.Errorf("failed to release lock %s: %w", l.key, err)
		case n == 0:
			l.err = fmt.Errorf("%w: %s", shared.ErrLockLost, l.key)
		}
	})
	return l.err
}
