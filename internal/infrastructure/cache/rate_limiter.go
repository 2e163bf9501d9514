package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitKeyPrefix = "soe:ratelimit:"

// SlidingWindowLimiter counts requests per key in a Redis sorted set so every API replica
// shares one budget.
type SlidingWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *zap.Logger
	seq    atomic.Uint64
	now    func() time.Time
}

func NewSlidingWindowLimiter(client *redis.Client, limit int, window time.Duration, logger *zap.Logger) (*SlidingWindowLimiter, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("redis client and logger are required")
	}
	if limit < 1 || window <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d per %s", limit, window)
	}
	return &SlidingWindowLimiter{
		client: client,
		limit:  limit,
		window: window,
		logger: logger.Named("rate_limiter"),
		now:    time.Now,
	}, nil
}

func (l *SlidingWindowLimiter) Limit() int { return l.limit }

// Allow records the request and reports whether it fits in the window. A rejected request
// is removed again so it does not count against the caller. Scores are Unix microseconds,
// which a float64 holds exactly.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	setKey := rateLimitKeyPrefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, setKey, "-inf", strconv.FormatInt(now.Add(-l.window).UnixMicro(), 10))
	count := pipe.ZCard(ctx, setKey)
	pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(now.UnixMicro()), Member: member})
	pipe.Expire(ctx, setKey, l.window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline failed: %w", err)
	}

	if count.Val() < int64(l.limit) {
		return true, nil
	}
	if err := l.client.ZRem(ctx, setKey, member).Err(); err != nil {
		l.logger.Warn("failed to drop rejected request", zap.String("key", key), zap.Error(err))
	}
	l.logger.Debug("rate limit exceeded",
		zap.String("key", key),
		zap.Int64("count", count.Val()),
		zap.Int("limit", l.limit))
	return false, nil
}
