package permission

import (
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

type transitions map[incident.Status][]incident.Status

var (
	adminTransitions = transitions{
		incident.StatusCreated:    {incident.StatusAccepted, incident.StatusInProgress},
		incident.StatusAccepted:   {incident.StatusInProgress, incident.StatusClosed},
		incident.StatusInProgress: {incident.StatusResolved},
		incident.StatusResolved:   {incident.StatusClosed},
	}

	orgTransitions = map[role.OrgRole]transitions{
		role.OrgAdmin:      adminTransitions,
		role.OrgSuperAdmin: adminTransitions,
		role.OrgDispatcher: {
			incident.StatusCreated:    {incident.StatusAccepted},
			incident.StatusAccepted:   {incident.StatusInProgress},
			incident.StatusInProgress: {incident.StatusResolved},
			incident.StatusResolved:   {incident.StatusClosed},
		},
		role.OrgChief: {
			incident.StatusInProgress: {incident.StatusResolved},
			incident.StatusResolved:   {incident.StatusClosed},
		},
		role.OrgGuard: {
			incident.StatusAccepted:   {incident.StatusInProgress},
			incident.StatusInProgress: {incident.StatusResolved},
		},
		role.OrgClient: {},
	}

	orgAssigners = map[role.OrgRole]bool{
		role.OrgAdmin: true, role.OrgSuperAdmin: true, role.OrgDispatcher: true, role.OrgChief: true,
	}

	orgCreators = map[role.OrgRole]bool{
		role.OrgAdmin: true, role.OrgSuperAdmin: true, role.OrgDispatcher: true,
		role.OrgChief: true, role.OrgGuard: true, role.OrgClient: true,
	}

	orgConfigManagers = map[role.OrgRole]bool{
		role.OrgAdmin: true, role.OrgSuperAdmin: true,
	}
)

// OrgMatrix governs actions inside one organization.
type OrgMatrix struct{}

func (OrgMatrix) Scope() role.Scope { return role.ScopeOrganization }

func (OrgMatrix) AllowedTransitions(sub role.Subject, current incident.Status) []incident.Status {
	if sub.Scope() != role.ScopeOrganization {
		return nil
	}
	return cloneStatuses(orgTransitions[sub.OrgRole()][current])
}

func (OrgMatrix) CanAssign(sub role.Subject) bool {
	return sub.Scope() == role.ScopeOrganization && orgAssigners[sub.OrgRole()]
}

func (OrgMatrix) CanCreate(sub role.Subject) bool {
	return sub.Scope() == role.ScopeOrganization && orgCreators[sub.OrgRole()]
}

func (OrgMatrix) CanManageConfig(sub role.Subject) bool {
	return sub.Scope() == role.ScopeOrganization && orgConfigManagers[sub.OrgRole()]
}
