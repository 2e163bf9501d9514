package containers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RedisContainer struct {
	*tcredis.RedisContainer
	URL string
}

func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	c, err := tcredis.Run(ctx, "redis:7-alpine", tcredis.WithLogLevel(tcredis.LogLevelVerbose))
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}
	url, err := c.ConnectionString(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis connection string: %w", err)
	}
	return &RedisContainer{RedisContainer: c, URL: url}, nil
}

// StartRedis runs a Redis server for the test. Skipped under -short.
func StartRedis(t *testing.T) *RedisContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	rc, err := NewRedisContainer(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })
	return rc
}
