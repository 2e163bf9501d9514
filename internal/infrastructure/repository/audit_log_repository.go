package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
	"github.com/davidleathers/secops-incident-engine/internal/service/audit"
)

const defaultAuditPageSize = 100

// AuditLogRepository persists the tenant-wide audit log. It is an audit.Sink.
type AuditLogRepository struct {
	db     *database.Pool
	logger *zap.Logger
}

func NewAuditLogRepository(db *database.Pool, logger *zap.Logger) (*AuditLogRepository, error) {
	if db == nil || logger == nil {
		return nil, fmt.Errorf("repository: db and logger are required")
	}
	return &AuditLogRepository{db: db, logger: logger.Named("audit_log")}, nil
}

func (r *AuditLogRepository) Name() string { return "postgres" }

// Record inserts the entry once; replays of the same event are ignored.
func (r *AuditLogRepository) Record(ctx context.Context, e audit.Entry) error {
	session := database.Session{ActorID: e.ActorID, TenantID: e.TenantID}
	err := r.db.InSession(ctx, session, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO audit_log (event_id, tenant_id, incident_id, kind, payload, actor_id, actor_role, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (event_id) DO NOTHING`,
			e.EventID, e.TenantID, e.IncidentID, string(e.Kind), []byte(e.Payload), e.ActorID, e.ActorRole, e.OccurredAt,
		)
		return err
	})
	return mapError(err, "audit log")
}

// AuditQuery pages through a tenant's audit log, newest first.
type AuditQuery struct {
	TenantID uuid.UUID
	Before   time.Time
	Limit    int
}

func (r *AuditLogRepository) List(ctx context.Context, sub role.Subject, q AuditQuery) ([]audit.Entry, error) {
	if q.Limit <= 0 || q.Limit > 1000 {
		q.Limit = defaultAuditPageSize
	}
	if q.Before.IsZero() {
		q.Before = time.Now().UTC()
	}

	var out []audit.Entry
	err := r.db.InSession(ctx, SessionFor(sub), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT event_id, tenant_id, incident_id, kind, payload, actor_id, actor_role, occurred_at
			FROM audit_log
			WHERE tenant_id = $1 AND occurred_at < $2
			ORDER BY occurred_at DESC, id DESC
			LIMIT $3`, q.TenantID, q.Before, q.Limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e audit.Entry
			var kind string
			var payload []byte
			if err := rows.Scan(&e.EventID, &e.TenantID, &e.IncidentID, &kind, &payload, &e.ActorID, &e.ActorRole, &e.OccurredAt); err != nil {
				return err
			}
			e.Kind = incident.EventKind(kind)
			e.Payload = payload
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(err, "audit log")
	}
	return out, nil
}
