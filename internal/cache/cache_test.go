package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vignette/internal/models"
)

func TestMemoryIndex(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	_, ok, err := idx.Get(ctx, "img-a", "thumb")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, idx.Set(ctx, models.Derivative{ImageID: "img-a", Preset: "thumb", BlobKey: "k1"}))
	require.NoError(t, idx.Set(ctx, models.Derivative{ImageID: "img-a", Preset: "hero", BlobKey: "k2"}))
	require.NoError(t, idx.Set(ctx, models.Derivative{ImageID: "img-b", Preset: "thumb", BlobKey: "k3"}))

	got, ok, err := idx.Get(ctx, "img-a", "thumb")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "k1", got.BlobKey)
	assert.Equal(t, 3, idx.Len())

	require.NoError(t, idx.Delete(ctx, "img-a", "thumb"))
	_, ok, _ = idx.Get(ctx, "img-a", "thumb")
	assert.False(t, ok)
	assert.Equal(t, 2, idx.Len())

	require.NoError(t, idx.Delete(ctx, "img-a"))
	assert.Equal(t, 1, idx.Len())
}

func TestNoOpIndex(t *testing.T) {
	ctx := context.Background()
	var idx Index = NoOp{}
	require.NoError(t, idx.Set(ctx, models.Derivative{ImageID: "img-a", Preset: "thumb"}))
	_, ok, err := idx.Get(ctx, "img-a", "thumb")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisKeyLayout(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	r := NewRedisFromClient(client, 0, "")
	assert.Equal(t, "vignette:derivatives:img-a", r.key("img-a"))

	custom := NewRedisFromClient(client, 0, "tenant1")
	assert.Equal(t, "tenant1:derivatives:img-a", custom.key("img-a"))
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{})
	assert.Error(t, err)
}
