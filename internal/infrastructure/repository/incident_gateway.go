package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/telemetry"
)

const incidentColumns = `
	id, tenant_id, title, description, type, severity, status, assignee_id, created_by,
	accepted_at, en_route_at, on_site_at, resolved_at, closed_at,
	version, created_at, updated_at`

// IncidentGateway stores incidents and their timelines in Postgres. Every call runs in a
// transaction carrying the caller's session settings, so the table policies confine
// organization callers to their own tenant.
type IncidentGateway struct {
	db     *database.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewIncidentGateway(db *database.Pool, logger *zap.Logger) (*IncidentGateway, error) {
	if db == nil || logger == nil {
		return nil, fmt.Errorf("repository: db and logger are required")
	}
	return &IncidentGateway{
		db:     db,
		logger: logger.Named("incident_gateway"),
		tracer: telemetry.Tracer("secops/repository"),
	}, nil
}

// SessionFor builds the policy session for a subject.
func SessionFor(sub role.Subject) database.Session {
	return database.Session{
		ActorID:       sub.ActorID(),
		TenantID:      sub.TenantID(),
		PlatformStaff: sub.CrossTenant(),
	}
}

func (g *IncidentGateway) GetIncident(ctx context.Context, sub role.Subject, id uuid.UUID) (*incident.Incident, error) {
	var inc *incident.Incident
	err := g.db.InSession(ctx, SessionFor(sub), func(tx pgx.Tx) error {
		var err error
		inc, err = scanIncident(tx.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return nil, g.notFoundAs(mapError(err, "incident"), errors.ErrIncidentNotFound)
	}
	return inc, nil
}

func (g *IncidentGateway) ListEvents(ctx context.Context, sub role.Subject, incidentID uuid.UUID) ([]incident.Event, error) {
	var events []incident.Event
	err := g.db.InSession(ctx, SessionFor(sub), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, incident_id, tenant_id, kind, payload, actor_id, actor_role, seq, created_at
			FROM incident_events
			WHERE incident_id = $1
			ORDER BY created_at, seq`, incidentID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(err, "incident events")
	}
	return events, nil
}

func (g *IncidentGateway) ResponderExists(ctx context.Context, sub role.Subject, tenantID, responderID uuid.UUID) (bool, error) {
	var exists bool
	err := g.db.InSession(ctx, SessionFor(sub), func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM org_memberships
				WHERE org_id = $1 AND actor_id = $2 AND active
			)`, tenantID, responderID).Scan(&exists)
	})
	if err != nil {
		return false, mapError(err, "responder")
	}
	return exists, nil
}

// ApplyMutation writes the row change and appends the event in one transaction. The row
// update is conditional on the planned status and version.
func (g *IncidentGateway) ApplyMutation(ctx context.Context, sub role.Subject, m *incident.Mutation) (incident.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, g.tracer, "postgres.apply_mutation",
		attribute.String("incident.id", m.IncidentID.String()),
		attribute.String("event.kind", string(m.Event.Kind)),
	)
	defer span.End()

	var stored incident.Event
	err := g.db.InSession(ctx, SessionFor(sub), func(tx pgx.Tx) error {
		if err := g.writeRow(ctx, tx, m); err != nil {
			return err
		}
		ev, err := insertEvent(ctx, tx, m.Event)
		if err != nil {
			return err
		}
		stored = ev
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return incident.Event{}, g.notFoundAs(mapError(err, "apply mutation"), errors.ErrIncidentNotFound)
	}
	return stored, nil
}

func (g *IncidentGateway) writeRow(ctx context.Context, tx pgx.Tx, m *incident.Mutation) error {
	if m.Insert != nil {
		return insertIncident(ctx, tx, m.Insert)
	}
	if !m.TouchesRow() {
		// the event still needs a visible parent row
		var one int
		return tx.QueryRow(ctx, `SELECT 1 FROM incidents WHERE id = $1`, m.IncidentID).Scan(&one)
	}

	var status *string
	if m.Status != nil {
		s := m.Status.String()
		status = &s
	}
	ts := func(f incident.TimestampField) *time.Time {
		if v, ok := m.Timestamps[f]; ok {
			return &v
		}
		return nil
	}

	tag, err := tx.Exec(ctx, `
		UPDATE incidents SET
			status      = COALESCE($3::text, status),
			assignee_id = CASE WHEN $4::boolean THEN $5::uuid ELSE assignee_id END,
			accepted_at = COALESCE(accepted_at, $6::timestamptz),
			en_route_at = COALESCE(en_route_at, $7::timestamptz),
			on_site_at  = COALESCE(on_site_at, $8::timestamptz),
			resolved_at = COALESCE(resolved_at, $9::timestamptz),
			closed_at   = COALESCE(closed_at, $10::timestamptz),
			version     = version + 1,
			updated_at  = $11
		WHERE id = $1 AND status = $2 AND version = $12`,
		m.IncidentID, m.Expect.Status.String(), status,
		m.AssigneeID != nil, m.AssigneeID,
		ts(incident.FieldAcceptedAt), ts(incident.FieldEnRouteAt), ts(incident.FieldOnSiteAt),
		ts(incident.FieldResolvedAt), ts(incident.FieldClosedAt),
		m.At, m.Expect.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return g.explainMiss(ctx, tx, m.IncidentID)
}

// explainMiss tells a lost optimistic check apart from a row that is gone or invisible.
func (g *IncidentGateway) explainMiss(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var status string
	var version int
	err := tx.QueryRow(ctx, `SELECT status, version FROM incidents WHERE id = $1`, id).Scan(&status, &version)
	if err != nil {
		return err
	}
	g.logger.Debug("optimistic check lost",
		zap.String("incident_id", id.String()),
		zap.String("current_status", status),
		zap.Int("current_version", version),
	)
	return errors.NewConcurrentModificationError("incident precondition no longer holds").
		WithDetails(map[string]interface{}{"current_status": status, "current_version": version})
}

func (g *IncidentGateway) notFoundAs(err error, replacement *errors.AppError) error {
	if errors.IsNotFound(err) {
		return replacement
	}
	return err
}

func insertIncident(ctx context.Context, tx pgx.Tx, inc *incident.Incident) error {
	_, err := tx.Exec(ctx, `INSERT INTO incidents (`+incidentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		inc.ID, inc.TenantID, inc.Title, inc.Description, string(inc.Type), string(inc.Severity),
		inc.Status.String(), inc.AssigneeID, inc.CreatedBy,
		inc.AcceptedAt, inc.EnRouteAt, inc.OnSiteAt, inc.ResolvedAt, inc.ClosedAt,
		inc.Version, inc.CreatedAt, inc.UpdatedAt,
	)
	return err
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev incident.Event) (incident.Event, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return incident.Event{}, fmt.Errorf("failed to marshal %s payload: %w", ev.Kind, err)
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO incident_events (id, incident_id, tenant_id, kind, payload, actor_id, actor_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`,
		ev.ID, ev.IncidentID, ev.TenantID, string(ev.Kind), payload, ev.ActorID, ev.ActorRole, ev.CreatedAt,
	).Scan(&ev.Seq)
	if err != nil {
		return incident.Event{}, err
	}
	return ev, nil
}

func scanIncident(row pgx.Row) (*incident.Incident, error) {
	var (
		inc                   incident.Incident
		typ, severity, status string
	)
	err := row.Scan(
		&inc.ID, &inc.TenantID, &inc.Title, &inc.Description, &typ, &severity, &status,
		&inc.AssigneeID, &inc.CreatedBy,
		&inc.AcceptedAt, &inc.EnRouteAt, &inc.OnSiteAt, &inc.ResolvedAt, &inc.ClosedAt,
		&inc.Version, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inc.Type = incident.Type(typ)
	inc.Severity = incident.Severity(severity)
	if inc.Status, err = incident.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("incident %s: %w", inc.ID, err)
	}
	return &inc, nil
}

func scanEvent(row pgx.Row) (incident.Event, error) {
	var (
		ev   incident.Event
		kind string
		raw  []byte
	)
	if err := row.Scan(&ev.ID, &ev.IncidentID, &ev.TenantID, &kind, &raw, &ev.ActorID, &ev.ActorRole, &ev.Seq, &ev.CreatedAt); err != nil {
		return incident.Event{}, err
	}
	ev.Kind = incident.EventKind(kind)
	payload, err := incident.DecodePayload(ev.Kind, raw)
	if err != nil {
		return incident.Event{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}
	ev.Payload = payload
	return ev, nil
}
