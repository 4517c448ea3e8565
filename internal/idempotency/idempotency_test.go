package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis keeps values in a map and ignores expiration.
type fakeRedis struct {
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{data: make(map[string]string)} }

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	key := Key("order", "u1", "abc")

	got, err := s.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.Reserve(ctx, key)
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete(ctx, key, "order-1"))
	got, err = s.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "order-1", got)

	other := Key("order", "u2", "abc")
	got, err = s.Reserve(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, s.Release(ctx, other))
	got, err = s.Reserve(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedis(t *testing.T) {
	testStore(t, &Redis{rdb: newFakeRedis(), ttl: time.Minute})
}

func TestRedis_Error(t *testing.T) {
	f := newFakeRedis()
	f.err = errors.New("connection refused")
	s := &Redis{rdb: f, ttl: time.Minute}

	_, err := s.Reserve(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInProgress)
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory(time.Minute))
}

func TestMemory_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Reserve(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, m.Complete(ctx, "k", "order-1"))

	now = now.Add(2 * time.Minute)
	got, err := m.Reserve(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}
