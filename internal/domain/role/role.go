package role

import (
	"fmt"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
)

// OrgRole is a role bound to exactly one organization (tenant).
type OrgRole string

const (
	OrgSuperAdmin OrgRole = "super_admin"
	OrgAdmin      OrgRole = "org_admin"
	OrgDispatcher OrgRole = "dispatcher"
	OrgChief      OrgRole = "chief"
	OrgGuard      OrgRole = "guard"
	OrgClient     OrgRole = "client"
)

// OrgRoles lists every organization role.
var OrgRoles = []OrgRole{OrgSuperAdmin, OrgAdmin, OrgDispatcher, OrgChief, OrgGuard, OrgClient}

func (r OrgRole) Valid() bool {
	for _, known := range OrgRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r OrgRole) String() string { return string(r) }

func ParseOrgRole(s string) (OrgRole, error) {
	r := OrgRole(s)
	if !r.Valid() {
		return "", errors.NewValidationError("INVALID_ORG_ROLE", fmt.Sprintf("unknown organization role %q", s))
	}
	return r, nil
}

// PlatformRole is a cross-tenant staff role.
type PlatformRole string

const (
	PlatformSuperAdmin PlatformRole = "super_admin"
	PlatformAdmin      PlatformRole = "admin"
	PlatformDispatcher PlatformRole = "dispatcher"
	PlatformDirector   PlatformRole = "director"
)

// platformPriority is fixed: lower wins when an actor holds several platform roles.
var platformPriority = map[PlatformRole]int{
	PlatformSuperAdmin: 0,
	PlatformAdmin:      1,
	PlatformDispatcher: 2,
	PlatformDirector:   3,
}

// PlatformRoles lists every platform role in priority order.
var PlatformRoles = []PlatformRole{PlatformSuperAdmin, PlatformAdmin, PlatformDispatcher, PlatformDirector}

func (r PlatformRole) Valid() bool {
	_, ok := platformPriority[r]
	return ok
}

// Priority returns the role's rank; -1 for unknown roles.
func (r PlatformRole) Priority() int {
	p, ok := platformPriority[r]
	if !ok {
		return -1
	}
	return p
}

func (r PlatformRole) String() string { return string(r) }

func ParsePlatformRole(s string) (PlatformRole, error) {
	r := PlatformRole(s)
	if !r.Valid() {
		return "", errors.NewValidationError("INVALID_PLATFORM_ROLE", fmt.Sprintf("unknown platform role %q", s))
	}
	return r, nil
}

// ReducePlatformRoles collapses all active rows to the single highest-priority role.
// Unknown values are ignored. ok is false when nothing valid remains (actor is not staff).
func ReducePlatformRoles(rows []PlatformRole) (best PlatformRole, ok bool) {
	for _, r := range rows {
		if !r.Valid() {
			continue
		}
		if !ok || r.Priority() < best.Priority() {
			best, ok = r, true
		}
	}
	return best, ok
}

// Scope selects which permission matrix governs an operation.
type Scope int

const (
	ScopeOrganization Scope = iota
	ScopePlatform
)

func (s Scope) String() string {
	switch s {
	case ScopeOrganization:
		return "org"
	case ScopePlatform:
		return "platform"
	default:
		return "unknown"
	}
}

func ParseScope(s string) (Scope, error) {
	switch s {
	case "org":
		return ScopeOrganization, nil
	case "platform":
		return ScopePlatform, nil
	default:
		return 0, errors.NewValidationError("INVALID_SCOPE", fmt.Sprintf("unknown scope %q", s))
	}
}
