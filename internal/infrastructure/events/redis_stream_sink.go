package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/service/audit"
)

// RedisStreamSink publishes audit entries to one Redis stream per tenant, capped at an
// approximate length.
type RedisStreamSink struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
	logger    *zap.Logger
}

func NewRedisStreamSink(client *redis.Client, keyPrefix string, maxLen int64, logger *zap.Logger) (*RedisStreamSink, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("redis client and logger are required")
	}
	if keyPrefix == "" {
		keyPrefix = "soe:audit:"
	}
	return &RedisStreamSink{
		client:    client,
		keyPrefix: keyPrefix,
		maxLen:    maxLen,
		logger:    logger.Named("audit_stream"),
	}, nil
}

func (s *RedisStreamSink) Name() string { return "redis_stream" }

// StreamKey is the stream carrying a tenant's audit log.
func (s *RedisStreamSink) StreamKey(tenantID uuid.UUID) string {
	return s.keyPrefix + tenantID.String()
}

func (s *RedisStreamSink) Record(ctx context.Context, e audit.Entry) error {
	args := &redis.XAddArgs{
		Stream: s.StreamKey(e.TenantID),
		Values: map[string]interface{}{
			"event_id":    e.EventID.String(),
			"incident_id": e.IncidentID.String(),
			"kind":        string(e.Kind),
			"actor_id":    e.ActorID.String(),
			"actor_role":  e.ActorRole,
			"payload":     string(e.Payload),
			"occurred_at": e.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	s.logger.Debug("audit entry published",
		zap.String("stream", args.Stream),
		zap.String("id", id),
		zap.String("event_id", e.EventID.String()))
	return nil
}
