package projection

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/refnexus/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestInMemoryStore_SetAndGet(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", []byte("hello"), 0))

	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)
}

func TestInMemoryStore_Miss(t *testing.T) {
	store := NewInMemoryStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryStore_DeleteMany(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "k1", []byte("a"), 0)
	_ = store.Set(ctx, "k2", []byte("b"), 0)
	require.NoError(t, store.Delete(ctx, "k1", "k2"))

	_, err := store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = store.Get(ctx, "k2")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Set(ctx, "k1", []byte("data"), 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, err := store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", []byte("hello"), time.Minute))
	val, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), val)
	assert.Equal(t, time.Minute, mr.TTL("k1"))

	require.NoError(t, store.Delete(ctx, "k1"))
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k1", []byte("data"), time.Second))
	mr.FastForward(2 * time.Second)

	_, err := store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = DialRedis(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestStatsCache_GetPutInvalidate(t *testing.T) {
	_, store := setupRedisStore(t)
	cache := NewStatsCache(store, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	a, b := uuid.New(), uuid.New()
	cache.PutMany(ctx, map[uuid.UUID]domain.RatingAggregate{
		a: {RefereeID: a, TotalGames: 4, AverageRating: 4.5, RatingCount: 2},
	})

	hits, misses := cache.GetMany(ctx, []uuid.UUID{a, b})
	require.Contains(t, hits, a)
	assert.Equal(t, 4, hits[a].TotalGames)
	assert.InDelta(t, 4.5, hits[a].AverageRating, 1e-9)
	assert.Equal(t, []uuid.UUID{b}, misses)

	cache.Invalidate(ctx, a)
	hits, misses = cache.GetMany(ctx, []uuid.UUID{a})
	assert.Empty(t, hits)
	assert.Equal(t, []uuid.UUID{a}, misses)
}

func TestStatsCache_StoreDownDegradesToMiss(t *testing.T) {
	mr, store := setupRedisStore(t)
	cache := NewStatsCache(store, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mr.Close()

	id := uuid.New()
	hits, misses := cache.GetMany(context.Background(), []uuid.UUID{id})
	assert.Empty(t, hits)
	assert.Equal(t, []uuid.UUID{id}, misses)

	cache.PutMany(context.Background(), map[uuid.UUID]domain.RatingAggregate{id: {RefereeID: id}})
	cache.Invalidate(context.Background(), id)
}
