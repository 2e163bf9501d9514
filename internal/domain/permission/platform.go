package permission

import (
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// linear is the only path platform staff may drive an incident along.
var linear = transitions{
	incident.StatusCreated:    {incident.StatusAccepted},
	incident.StatusAccepted:   {incident.StatusInProgress},
	incident.StatusInProgress: {incident.StatusResolved},
	incident.StatusResolved:   {incident.StatusClosed},
}

var platformOperators = map[role.PlatformRole]bool{
	role.PlatformSuperAdmin: true, role.PlatformAdmin: true, role.PlatformDispatcher: true,
}

// PlatformMatrix governs cross-tenant actions by platform staff. Directors observe only.
type PlatformMatrix struct{}

func (PlatformMatrix) Scope() role.Scope { return role.ScopePlatform }

func (PlatformMatrix) AllowedTransitions(sub role.Subject, current incident.Status) []incident.Status {
	if sub.Scope() != role.ScopePlatform || !platformOperators[sub.PlatformRole()] {
		return nil
	}
	return cloneStatuses(linear[current])
}

func (PlatformMatrix) CanAssign(sub role.Subject) bool {
	return sub.Scope() == role.ScopePlatform && platformOperators[sub.PlatformRole()]
}

func (PlatformMatrix) CanCreate(sub role.Subject) bool {
	return sub.Scope() == role.ScopePlatform && platformOperators[sub.PlatformRole()]
}

func (PlatformMatrix) CanManageConfig(sub role.Subject) bool {
	if sub.Scope() != role.ScopePlatform {
		return false
	}
	return sub.PlatformRole() == role.PlatformSuperAdmin || sub.PlatformRole() == role.PlatformAdmin
}
