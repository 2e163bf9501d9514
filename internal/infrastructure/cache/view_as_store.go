package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

const viewAsKeyPrefix = "soe:view_as:"

// ViewAsStore keeps "view as" overrides in Redis. Each override expires after ttl so a
// forgotten impersonation does not outlive the working session.
type ViewAsStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewViewAsStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) (*ViewAsStore, error) {
	if client == nil || logger == nil {
		return nil, fmt.Errorf("redis client and logger are required")
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &ViewAsStore{client: client, ttl: ttl, logger: logger.Named("view_as")}, nil
}

func viewAsKey(actorID uuid.UUID) string {
	return viewAsKeyPrefix + actorID.String()
}

// Get returns the stored override. An unknown stored value is treated as no override.
func (s *ViewAsStore) Get(ctx context.Context, actorID uuid.UUID) (role.OrgRole, bool, error) {
	v, err := s.client.Get(ctx, viewAsKey(actorID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get failed: %w", err)
	}
	r, err := role.ParseOrgRole(v)
	if err != nil {
		s.logger.Warn("discarding unknown view-as role",
			zap.String("actor_id", actorID.String()),
			zap.String("value", v))
		return "", false, nil
	}
	return r, true, nil
}

func (s *ViewAsStore) Set(ctx context.Context, actorID uuid.UUID, r role.OrgRole) error {
	if err := s.client.Set(ctx, viewAsKey(actorID), string(r), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *ViewAsStore) Clear(ctx context.Context, actorID uuid.UUID) error {
	if err := s.client.Del(ctx, viewAsKey(actorID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
