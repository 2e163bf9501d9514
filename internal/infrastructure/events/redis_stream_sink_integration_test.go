package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/secops-incident-engine/internal/testutil/containers"
)

func TestRedisStreamSink_RealRedis(t *testing.T) {
	rc := containers.StartRedis(t)
	ctx := context.Background()

	opts, err := redis.ParseURL(rc.URL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	sink, err := NewRedisStreamSink(client, "", 1000, zaptest.NewLogger(t))
	require.NoError(t, err)

	tenant := uuid.New()
	first, second := entry(tenant), entry(tenant)
	require.NoError(t, sink.Record(ctx, first))
	require.NoError(t, sink.Record(ctx, second))

	streams, err := client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{sink.StreamKey(tenant), "0"},
		Count:   10,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	require.Len(t, streams[0].Messages, 2)
	assert.Equal(t, first.EventID.String(), streams[0].Messages[0].Values["event_id"])
	assert.Equal(t, second.EventID.String(), streams[0].Messages[1].Values["event_id"])
	assert.Equal(t, "soe:audit:"+tenant.String(), sink.StreamKey(tenant))
}
