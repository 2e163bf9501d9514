package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
)

// RoleRepository reads role bindings. Lookups run under the actor's own session, so the
// policies on org_memberships and platform_roles only expose the actor's rows.
type RoleRepository struct {
	db     *database.Pool
	logger *zap.Logger
}

func NewRoleRepository(db *database.Pool, logger *zap.Logger) (*RoleRepository, error) {
	if db == nil || logger == nil {
		return nil, fmt.Errorf("repository: db and logger are required")
	}
	return &RoleRepository{db: db, logger: logger.Named("role_repository")}, nil
}

func (r *RoleRepository) ActiveMemberships(ctx context.Context, actorID uuid.UUID) ([]role.Membership, error) {
	var out []role.Membership
	err := r.db.InSession(ctx, database.Session{ActorID: actorID}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT actor_id, org_id, role, active
			FROM org_memberships
			WHERE actor_id = $1 AND active`, actorID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m role.Membership
			var name string
			if err := rows.Scan(&m.ActorID, &m.OrgID, &name, &m.Active); err != nil {
				return err
			}
			parsed, err := role.ParseOrgRole(name)
			if err != nil {
				r.logger.Warn("skipping membership with unknown role",
					zap.String("actor_id", actorID.String()),
					zap.String("role", name))
				continue
			}
			m.Role = parsed
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(err, "org memberships")
	}
	return out, nil
}

func (r *RoleRepository) ActivePlatformRoles(ctx context.Context, actorID uuid.UUID) ([]role.PlatformRole, error) {
	var out []role.PlatformRole
	err := r.db.InSession(ctx, database.Session{ActorID: actorID}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT role FROM platform_roles WHERE actor_id = $1 AND active`, actorID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			parsed, err := role.ParsePlatformRole(name)
			if err != nil {
				r.logger.Warn("skipping unknown platform role",
					zap.String("actor_id", actorID.String()),
					zap.String("role", name))
				continue
			}
			out = append(out, parsed)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapError(err, "platform roles")
	}
	return out, nil
}
