package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// RoleRepository reads role bindings from persistence. ActivePlatformRoles returns a
// Denied error when the store's own policy hides the rows from the caller.
type RoleRepository interface {
	ActiveMemberships(ctx context.Context, actorID uuid.UUID) ([]role.Membership, error)
	ActivePlatformRoles(ctx context.Context, actorID uuid.UUID) ([]role.PlatformRole, error)
}

// ViewAsStore keeps the display-only "view as" override per actor.
type ViewAsStore interface {
	Get(ctx context.Context, actorID uuid.UUID) (role.OrgRole, bool, error)
	Set(ctx context.Context, actorID uuid.UUID, r role.OrgRole) error
	Clear(ctx context.Context, actorID uuid.UUID) error
}
