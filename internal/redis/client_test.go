package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hmac-gateway/internal/common/errors"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.Error(t, err)
	})

	t.Run("applies defaults", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		config := &Config{Address: mr.Addr()}
		client, err := NewClient(config)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
		assert.Equal(t, 5*time.Second, config.DialTimeout)
		assert.Equal(t, 3*time.Second, config.ReadTimeout)
	})

	t.Run("unreachable server", func(t *testing.T) {
		_, err := NewClient(&Config{Address: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
	})
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)

	require.NoError(t, client.Health(context.Background()))

	mr.SetError("LOADING Redis is loading the dataset in memory")
	err := client.Health(context.Background())
	assert.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConnection))
	mr.SetError("")
}

func TestClient_Cmdable(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Cmdable().Set(ctx, "k", "v", time.Minute).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.NotNil(t, client.PoolStats())
}
