package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{URL: mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("nil logger", func(t *testing.T) {
		_, err := NewClient(context.Background(), config.RedisConfig{URL: "localhost:6379"}, nil)
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		addr := mr.Addr()
		mr.Close()

		_, err = NewClient(context.Background(), config.RedisConfig{URL: addr}, zaptest.NewLogger(t))
		assert.Error(t, err)
	})
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantAddr string
		wantDB   int
		wantPass string
		wantErr  bool
	}{
		{name: "bare address", cfg: config.RedisConfig{URL: "cache:6379"}, wantAddr: "cache:6379"},
		{name: "url", cfg: config.RedisConfig{URL: "redis://:secret@cache:6380/2"}, wantAddr: "cache:6380", wantDB: 2, wantPass: "secret"},
		{name: "explicit settings win", cfg: config.RedisConfig{URL: "redis://cache:6379/2", DB: 5, Password: "other"}, wantAddr: "cache:6379", wantDB: 5, wantPass: "other"},
		{name: "bad scheme", cfg: config.RedisConfig{URL: "http://cache:6379"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := clientOptions(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, opts.Addr)
			assert.Equal(t, tt.wantDB, opts.DB)
			assert.Equal(t, tt.wantPass, opts.Password)
			assert.Equal(t, 3, opts.MaxRetries)
		})
	}
}

func TestViewAsStore(t *testing.T) {
	client, mr := setupTestRedis(t)
	store, err := NewViewAsStore(client, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	actor := uuid.New()

	_, ok, err := store.Get(ctx, actor)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, actor, role.OrgGuard))
	got, ok, err := store.Get(ctx, actor)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, role.OrgGuard, got)
	assert.Equal(t, time.Hour, mr.TTL(viewAsKey(actor)))

	require.NoError(t, store.Clear(ctx, actor))
	_, ok, err = store.Get(ctx, actor)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViewAsStore_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	store, err := NewViewAsStore(client, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)

	actor := uuid.New()
	require.NoError(t, store.Set(context.Background(), actor, role.OrgClient))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(context.Background(), actor)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViewAsStore_IgnoresUnknownValue(t *testing.T) {
	client, mr := setupTestRedis(t)
	store, err := NewViewAsStore(client, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)

	actor := uuid.New()
	require.NoError(t, mr.Set(viewAsKey(actor), "janitor"))

	_, ok, err := store.Get(context.Background(), actor)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestViewAsStore_BackendFailure(t *testing.T) {
	client, mr := setupTestRedis(t)
	store, err := NewViewAsStore(client, time.Minute, zaptest.NewLogger(t))
	require.NoError(t, err)

	mr.SetError("READONLY")
	_, _, err = store.Get(context.Background(), uuid.New())
	assert.Error(t, err)
}
