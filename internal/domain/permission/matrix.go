package permission

import (
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// Matrix answers what a subject may do. Organization and platform tables implement it
// separately and are never consulted together.
type Matrix interface {
	Scope() role.Scope
	// AllowedTransitions returns the statuses reachable from current, in lifecycle order.
	AllowedTransitions(sub role.Subject, current incident.Status) []incident.Status
	CanAssign(sub role.Subject) bool
	CanCreate(sub role.Subject) bool
	CanManageConfig(sub role.Subject) bool
}

// Allows reports whether from→to is in the subject's allowed set.
func Allows(m Matrix, sub role.Subject, from, to incident.Status) bool {
	for _, s := range m.AllowedTransitions(sub, from) {
		if s == to {
			return true
		}
	}
	return false
}

// Set holds one matrix per scope.
type Set struct {
	Org      Matrix
	Platform Matrix
}

// Default returns the built-in organization and platform tables.
func Default() Set {
	return Set{Org: OrgMatrix{}, Platform: PlatformMatrix{}}
}

// For returns the matrix governing scope.
func (s Set) For(scope role.Scope) Matrix {
	if scope == role.ScopePlatform {
		return s.Platform
	}
	return s.Org
}

// Grant is computed per request from the persisted status and discarded afterwards.
type Grant struct {
	Current       incident.Status   `json:"current"`
	AllowedNext   []incident.Status `json:"allowed_next"`
	CanAssign     bool              `json:"can_assign"`
	CanMarkOnSite bool              `json:"can_mark_on_site"`
}

// GrantFor computes the subject's grant on inc.
func GrantFor(m Matrix, sub role.Subject, inc *incident.Incident) Grant {
	allowed := m.AllowedTransitions(sub, inc.Status)
	if allowed == nil {
		allowed = []incident.Status{}
	}
	return Grant{
		Current:       inc.Status,
		AllowedNext:   allowed,
		CanAssign:     inc.Status.Assignable() && m.CanAssign(sub),
		CanMarkOnSite: CanMarkOnSite(m, sub, inc),
	}
}

// CanMarkOnSite reports whether sub may stamp on_site_at on inc: the incident is in
// progress, the stamp is still empty, and sub may resolve it from here.
func CanMarkOnSite(m Matrix, sub role.Subject, inc *incident.Incident) bool {
	return inc.Status == incident.StatusInProgress &&
		inc.OnSiteAt == nil &&
		Allows(m, sub, incident.StatusInProgress, incident.StatusResolved)
}

func cloneStatuses(in []incident.Status) []incident.Status {
	if len(in) == 0 {
		return nil
	}
	out := make([]incident.Status, len(in))
	copy(out, in)
	return out
}
