package access

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/metrics"
)

// PlatformOutcome is the three-way result of a platform role lookup.
type PlatformOutcome int

const (
	// PlatformNone: no active rows, the actor is not staff.
	PlatformNone PlatformOutcome = iota
	PlatformFound
	// PlatformNoAccess: the store's policy hid the rows. Treated as "not staff" without
	// surfacing an error to the user.
	PlatformNoAccess
)

func (o PlatformOutcome) String() string {
	switch o {
	case PlatformFound:
		return "found"
	case PlatformNoAccess:
		return "no_access"
	default:
		return "none"
	}
}

type PlatformLookup struct {
	Outcome PlatformOutcome
	Role    role.PlatformRole
}

// Resolver turns an authenticated actor id into a role snapshot. It holds no cache: every
// request resolves from persistence.
type Resolver struct {
	roles   RoleRepository
	viewAs  ViewAsStore
	logger  *zap.Logger
	metrics *metrics.Registry
	now     func() time.Time
}

func NewResolver(roles RoleRepository, viewAs ViewAsStore, logger *zap.Logger, m *metrics.Registry) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		roles:   roles,
		viewAs:  viewAs,
		logger:  logger.Named("role_resolver"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the actor's true roles plus any display override. An actor with no active
// organization membership gets NoRoleAssigned, which callers treat as a forced sign-out.
func (r *Resolver) Resolve(ctx context.Context, actorID uuid.UUID) (*role.Snapshot, error) {
	memberships, err := r.roles.ActiveMemberships(ctx, actorID)
	if err != nil {
		if errors.IsDenied(err) {
			r.metrics.RoleResolution("no_role")
			return nil, errors.NewNoRoleAssignedError("organization membership not readable").WithCause(err)
		}
		r.metrics.RoleResolution("error")
		r.logger.Warn("membership lookup failed", zap.String("actor_id", actorID.String()), zap.Error(err))
		return nil, errors.NewTransientError("could not resolve roles").WithCause(err)
	}

	var active []role.Membership
	for _, m := range memberships {
		if m.Active && m.Role.Valid() {
			active = append(active, m)
		}
	}
	switch len(active) {
	case 0:
		r.metrics.RoleResolution("no_role")
		return nil, errors.NewNoRoleAssignedError("no active organization membership")
	case 1:
	default:
		r.metrics.RoleResolution("ambiguous")
		r.logger.Error("actor has more than one active membership",
			zap.String("actor_id", actorID.String()),
			zap.Int("memberships", len(active)),
		)
		return nil, errors.NewInternalError("role assignment is ambiguous").
			WithDetails(map[string]interface{}{"memberships": len(active)})
	}

	lookup, err := r.ResolvePlatformRole(ctx, actorID)
	if err != nil {
		return nil, err
	}

	snap := &role.Snapshot{
		ActorID:    actorID,
		OrgID:      active[0].OrgID,
		OrgRole:    active[0].Role,
		IsStaff:    lookup.Outcome == PlatformFound,
		ResolvedAt: r.now(),
	}
	if snap.IsStaff {
		snap.PlatformRole = lookup.Role
	}

	r.metrics.RoleResolution("resolved")
	return r.applyViewAs(ctx, snap), nil
}

// ResolvePlatformRole reduces all active platform rows to the highest-priority role.
// Persistence policy denials are reported as PlatformNoAccess, not as an error.
func (r *Resolver) ResolvePlatformRole(ctx context.Context, actorID uuid.UUID) (PlatformLookup, error) {
	rows, err := r.roles.ActivePlatformRoles(ctx, actorID)
	if err != nil {
		if errors.IsDenied(err) {
			r.metrics.RoleResolution("platform_no_access")
			r.logger.Debug("platform roles hidden by policy", zap.String("actor_id", actorID.String()))
			return PlatformLookup{Outcome: PlatformNoAccess}, nil
		}
		r.metrics.RoleResolution("error")
		r.logger.Warn("platform role lookup failed", zap.String("actor_id", actorID.String()), zap.Error(err))
		return PlatformLookup{}, errors.NewTransientError("could not resolve platform roles").WithCause(err)
	}

	best, ok := role.ReducePlatformRoles(rows)
	if !ok {
		return PlatformLookup{Outcome: PlatformNone}, nil
	}
	return PlatformLookup{Outcome: PlatformFound, Role: best}, nil
}

// SetViewAs stores a display override. Only platform super admins may set one.
func (r *Resolver) SetViewAs(ctx context.Context, actorID uuid.UUID, target role.OrgRole) (*role.Snapshot, error) {
	snap, err := r.Resolve(ctx, actorID)
	if err != nil {
		return nil, err
	}
	viewed, err := snap.WithViewAs(target)
	if err != nil {
		return nil, err
	}
	if err := r.viewAs.Set(ctx, actorID, target); err != nil {
		return nil, errors.NewTransientError("could not store view-as role").WithCause(err)
	}
	r.logger.Info("view-as role set",
		zap.String("actor_id", actorID.String()),
		zap.String("true_role", string(snap.OrgRole)),
		zap.String("view_as", string(target)),
	)
	return viewed, nil
}

func (r *Resolver) ClearViewAs(ctx context.Context, actorID uuid.UUID) error {
	if err := r.viewAs.Clear(ctx, actorID); err != nil {
		return errors.NewTransientError("could not clear view-as role").WithCause(err)
	}
	return nil
}

// applyViewAs attaches a stored override. Failures only affect display, so they are logged
// and the true role is shown.
func (r *Resolver) applyViewAs(ctx context.Context, snap *role.Snapshot) *role.Snapshot {
	if r.viewAs == nil || !snap.CanImpersonate() {
		return snap
	}
	target, ok, err := r.viewAs.Get(ctx, snap.ActorID)
	if err != nil {
		r.logger.Warn("view-as lookup failed", zap.String("actor_id", snap.ActorID.String()), zap.Error(err))
		return snap
	}
	if !ok {
		return snap
	}
	viewed, err := snap.WithViewAs(target)
	if err != nil {
		return snap
	}
	return viewed
}
