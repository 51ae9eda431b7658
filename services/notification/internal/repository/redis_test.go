package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T, ttl time.Duration) (*RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRepository(client, ttl), mr
}

func TestMarkAndCheck(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t, time.Hour)

	done, err := repo.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, done)

	first, err := repo.MarkProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.MarkProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, second)

	done, err = repo.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, mr.Exists(processedKeyPrefix+"msg-1"))
}

func TestMarkExpires(t *testing.T) {
	ctx := context.Background()
	repo, mr := newRepo(t, time.Minute)
	_, err := repo.MarkProcessed(ctx, "msg-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	done, err := repo.IsProcessed(ctx, "msg-1")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestEmptyIDIsNeverProcessed(t *testing.T) {
	repo, _ := newRepo(t, time.Minute)
	done, err := repo.IsProcessed(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRedisDown(t *testing.T) {
	repo, mr := newRepo(t, time.Minute)
	mr.Close()
	_, err := repo.IsProcessed(context.Background(), "msg-1")
	assert.Error(t, err)
}
