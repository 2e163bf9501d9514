package role

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
)

// Membership is one organization binding as stored by the persistence layer.
type Membership struct {
	ActorID uuid.UUID
	OrgID   uuid.UUID
	Role    OrgRole
	Active  bool
}

// Snapshot is an actor's resolved roles for the duration of one request.
//
// OrgRole and PlatformRole are the true roles. A "view as" override is kept apart and only
// reachable through Display, so authorization code built on Subject can never see it.
type Snapshot struct {
	ActorID      uuid.UUID
	OrgID        uuid.UUID
	OrgRole      OrgRole
	PlatformRole PlatformRole
	IsStaff      bool
	ResolvedAt   time.Time

	viewAs OrgRole
}

// CanImpersonate reports whether the actor may set a "view as" organization role.
func (s *Snapshot) CanImpersonate() bool {
	return s.IsStaff && s.PlatformRole == PlatformSuperAdmin
}

// WithViewAs returns a copy of the snapshot displaying target instead of the true org role.
func (s *Snapshot) WithViewAs(target OrgRole) (*Snapshot, error) {
	if !s.CanImpersonate() {
		return nil, errors.NewNotPermittedError("IMPERSONATION_NOT_ALLOWED", "only platform super admins may view as another role")
	}
	if !target.Valid() {
		return nil, errors.NewValidationError("INVALID_ORG_ROLE", "unknown organization role")
	}
	cp := *s
	cp.viewAs = target
	return &cp, nil
}

// Display is the role used for navigation and labels only.
func (s *Snapshot) Display() DisplayRole {
	d := DisplayRole{Org: Label(s.OrgRole)}
	if s.IsStaff {
		d.Platform = Label(s.PlatformRole)
	}
	if s.viewAs != "" {
		d.Org = Label(s.viewAs)
		d.Impersonating = true
	}
	return d
}

// Subject returns the authorization principal for the given scope, built from true roles.
func (s *Snapshot) Subject(scope Scope) (Subject, error) {
	switch scope {
	case ScopeOrganization:
		if !s.OrgRole.Valid() {
			return Subject{}, errors.NewNoRoleAssignedError("no organization role assigned")
		}
		return Subject{scope: scope, actorID: s.ActorID, tenantID: s.OrgID, org: s.OrgRole}, nil
	case ScopePlatform:
		if !s.IsStaff {
			return Subject{}, errors.NewNotPermittedError("NOT_PLATFORM_STAFF", "platform scope requires a platform role")
		}
		return Subject{scope: scope, actorID: s.ActorID, tenantID: s.OrgID, platform: s.PlatformRole}, nil
	default:
		return Subject{}, errors.NewValidationError("INVALID_SCOPE", "unknown scope")
	}
}

// Label is a role name for presentation. It is not accepted by any permission check.
type Label string

// DisplayRole carries presentation-only role labels.
type DisplayRole struct {
	Org           Label `json:"org_role"`
	Platform      Label `json:"platform_role,omitempty"`
	Impersonating bool  `json:"impersonating"`
}

// Subject is the only principal the permission matrix and state machine accept. It can be
// obtained solely from a Snapshot's true roles.
type Subject struct {
	scope    Scope
	actorID  uuid.UUID
	tenantID uuid.UUID
	org      OrgRole
	platform PlatformRole
}

func (s Subject) Scope() Scope { return s.scope }

func (s Subject) ActorID() uuid.UUID { return s.actorID }

func (s Subject) OrgRole() OrgRole { return s.org }

func (s Subject) PlatformRole() PlatformRole { return s.platform }

// TenantID is the actor's own organization. Organization-scoped reads and writes are
// confined to it; platform-scoped ones are not.
func (s Subject) TenantID() uuid.UUID { return s.tenantID }

// CrossTenant reports whether reads through this subject are unscoped.
func (s Subject) CrossTenant() bool { return s.scope == ScopePlatform }

// RoleName is the true role in the subject's scope, for logs and audit records.
func (s Subject) RoleName() string {
	if s.scope == ScopePlatform {
		return "platform:" + string(s.platform)
	}
	return "org:" + string(s.org)
}
