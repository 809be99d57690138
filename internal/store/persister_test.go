package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.social.client/internal/model"
)

func TestFilePersister(t *testing.T) {
	ctx := context.Background()
	p := NewFilePersister(t.TempDir(), "u1")

	_, err := p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := Snapshot{
		User:      &model.User{ID: "u1", Username: "ada", FirstName: "Ada"},
		Recipient: &model.User{ID: "u2", Username: "bob"},
	}
	require.NoError(t, p.Save(ctx, snap))

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	require.NoError(t, p.Clear(ctx))
	require.NoError(t, p.Clear(ctx), "clearing twice is fine")
	_, err = p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestLoadInto(t *testing.T) {
	ctx := context.Background()
	p := NewFilePersister(t.TempDir(), "u1")
	s := New()

	require.NoError(t, LoadInto(ctx, p, s), "missing snapshot is not an error")
	assert.Nil(t, s.User())

	require.NoError(t, p.Save(ctx, Snapshot{User: &model.User{ID: "u1"}}))
	require.NoError(t, LoadInto(ctx, p, s))
	assert.Equal(t, "u1", s.User().ID)
	assert.Nil(t, s.Recipient())
}

// 注意：Redis 测试需要一个运行中的 Redis 实例，没有时跳过

func getTestRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis unavailable: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestRedisPersister(t *testing.T) {
	client := getTestRedisClient(t)
	ctx := context.Background()
	p := NewRedisPersister(client, "u1", time.Minute)

	_, err := p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := Snapshot{User: &model.User{ID: "u1", Username: "ada"}}
	require.NoError(t, p.Save(ctx, snap))

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	ttl, err := client.TTL(ctx, BuildStateKey("u1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, p.Clear(ctx))
	_, err = p.Load(ctx)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
