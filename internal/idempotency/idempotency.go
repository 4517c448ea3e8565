// Package idempotency deduplicates retried order placements keyed by the
// client-supplied Idempotency-Key header.
package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/apperr"
)

// DefaultTTL is how long a completed key replays its result.
const DefaultTTL = 24 * time.Hour

const pending = "\x00pending"

// ErrInProgress is returned while another request holds the key.
var ErrInProgress = apperr.New(apperr.KindConflict, "a request with this idempotency key is already in progress")

// Store reserves keys and remembers the resource created under them.
type Store interface {
	// Reserve claims key. It returns the stored result when the key was
	// already completed, an empty string when the caller now owns the key,
	// and ErrInProgress when another request holds it.
	Reserve(ctx context.Context, key string) (string, error)
	// Complete stores the result under a reserved key.
	Complete(ctx context.Context, key, result string) error
	// Release drops a reservation so the request may be retried.
	Release(ctx context.Context, key string) error
}

// Key scopes a client key to a user and operation.
func Key(op, userID, clientKey string) string {
	return "idem:" + op + ":" + userID + ":" + clientKey
}

// client is the subset of redis.Cmdable used by Redis.
type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ Store = (*Redis)(nil)

// Redis is a Store on a Redis server.
type Redis struct {
	rdb client
	ttl time.Duration
}

// NewRedis creates a Redis store. Reservations and results expire after ttl.
func NewRedis(rdb redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func (r *Redis) Reserve(ctx context.Context, key string) (string, error) {
	ok, err := r.rdb.SetNX(ctx, key, pending, r.ttl).Result()
	if err != nil {
		return "", errors.Wrap(err, "reserve idempotency key")
	}
	if ok {
		return "", nil
	}
	v, err := r.rdb.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET.
		return r.Reserve(ctx, key)
	case err != nil:
		return "", errors.Wrap(err, "read idempotency key")
	case v == pending:
		return "", ErrInProgress
	}
	return v, nil
}

func (r *Redis) Complete(ctx context.Context, key, result string) error {
	return errors.Wrap(r.rdb.Set(ctx, key, result, r.ttl).Err(), "complete idempotency key")
}

func (r *Redis) Release(ctx context.Context, key string) error {
	return errors.Wrap(r.rdb.Del(ctx, key).Err(), "release idempotency key")
}

var _ Store = (*Memory)(nil)

// Memory is a process-local Store for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]entry
}

type entry struct {
	value   string
	expires time.Time
}

// NewMemory creates an in-process store.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, keys: make(map[string]entry)}
}

func (m *Memory) Reserve(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.keys[key]
	if ok && now.Before(e.expires) {
		if e.value == pending {
			return "", ErrInProgress
		}
		return e.value, nil
	}
	m.keys[key] = entry{value: pending, expires: now.Add(m.ttl)}
	return "", nil
}

func (m *Memory) Complete(_ context.Context, key, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = entry{value: result, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
