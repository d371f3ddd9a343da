// Package lock serializes payroll generation per period across instances.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var ErrNotObtained = errors.New("lock not obtained")

type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Connect dials Redis when redisURL is set and returns nil otherwise. The
// client is shared by payroll locks and the API rate limiter.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	slog.Info("redis connected", "addr", opts.Addr)
	return client, nil
}

// New returns a Redis-backed locker for a non-nil client and an in-process
// locker otherwise.
func New(client *redis.Client) Locker {
	if client == nil {
		return NewLocal()
	}
	return NewRedis(client)
}

type RedisLocker struct {
	client *redislock.Client
}

func NewRedis(client redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(client)}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lk, nil
}

type localHold struct {
	token   uint64
	expires time.Time
}

// LocalLocker is the single-process fallback. Each lease carries a token so
// a holder whose TTL lapsed cannot release a later holder's lock.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]localHold
	next uint64
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: map[string]localHold{}}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, ErrNotObtained
	}
	l.next++
	l.held[key] = localHold{token: l.next, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, token: l.next}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	token  uint64
}

func (l *localLease) Release(context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	if h, ok := l.locker.held[l.key]; ok && h.token == l.token {
		delete(l.locker.held, l.key)
	}
	return nil
}
