package permission

import (
	"testing"
	"testing/quick"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

func orgSubject(t testing.TB, r role.OrgRole) role.Subject {
	t.Helper()
	snap := &role.Snapshot{ActorID: uuid.New(), OrgID: uuid.New(), OrgRole: r}
	sub, err := snap.Subject(role.ScopeOrganization)
	require.NoError(t, err)
	return sub
}

func platformSubject(t testing.TB, r role.PlatformRole) role.Subject {
	t.Helper()
	snap := &role.Snapshot{ActorID: uuid.New(), OrgID: uuid.New(), OrgRole: role.OrgClient, PlatformRole: r, IsStaff: true}
	sub, err := snap.Subject(role.ScopePlatform)
	require.NoError(t, err)
	return sub
}

const (
	created    = incident.StatusCreated
	accepted   = incident.StatusAccepted
	inProgress = incident.StatusInProgress
	resolved   = incident.StatusResolved
	closed     = incident.StatusClosed
)

func TestOrgMatrix_Table(t *testing.T) {
	type row map[incident.Status][]incident.Status
	admin := row{
		created:    {accepted, inProgress},
		accepted:   {inProgress, closed},
		inProgress: {resolved},
		resolved:   {closed},
	}
	tests := []struct {
		role role.OrgRole
		want row
	}{
		{role.OrgAdmin, admin},
		{role.OrgSuperAdmin, admin},
		{role.OrgDispatcher, row{created: {accepted}, accepted: {inProgress}, inProgress: {resolved}, resolved: {closed}}},
		{role.OrgChief, row{inProgress: {resolved}, resolved: {closed}}},
		{role.OrgGuard, row{accepted: {inProgress}, inProgress: {resolved}}},
		{role.OrgClient, row{}},
	}

	m := OrgMatrix{}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			sub := orgSubject(t, tt.role)
			for _, from := range incident.Statuses {
				assert.Equal(t, tt.want[from], m.AllowedTransitions(sub, from), "from %s", from)
			}
		})
	}
}

func TestPlatformMatrix_Linear(t *testing.T) {
	m := PlatformMatrix{}
	for _, r := range []role.PlatformRole{role.PlatformSuperAdmin, role.PlatformAdmin, role.PlatformDispatcher} {
		sub := platformSubject(t, r)
		assert.Equal(t, []incident.Status{accepted}, m.AllowedTransitions(sub, created), r)
		assert.Equal(t, []incident.Status{inProgress}, m.AllowedTransitions(sub, accepted), r)
		assert.Equal(t, []incident.Status{resolved}, m.AllowedTransitions(sub, inProgress), r)
		assert.Equal(t, []incident.Status{closed}, m.AllowedTransitions(sub, resolved), r)
		assert.Empty(t, m.AllowedTransitions(sub, closed), r)
	}

	director := platformSubject(t, role.PlatformDirector)
	for _, s := range incident.Statuses {
		assert.Empty(t, m.AllowedTransitions(director, s))
	}
	assert.False(t, m.CanAssign(director))
	assert.False(t, m.CanCreate(director))
}

func TestMatricesAreNeverMerged(t *testing.T) {
	org := orgSubject(t, role.OrgAdmin)
	platform := platformSubject(t, role.PlatformSuperAdmin)

	assert.Empty(t, PlatformMatrix{}.AllowedTransitions(org, accepted))
	assert.False(t, PlatformMatrix{}.CanAssign(org))
	assert.Empty(t, OrgMatrix{}.AllowedTransitions(platform, accepted))
	assert.False(t, OrgMatrix{}.CanCreate(platform))

	set := Default()
	assert.Equal(t, role.ScopeOrganization, set.For(role.ScopeOrganization).Scope())
	assert.Equal(t, role.ScopePlatform, set.For(role.ScopePlatform).Scope())
}

func TestCapabilities(t *testing.T) {
	m := OrgMatrix{}
	tests := []struct {
		role                   role.OrgRole
		assign, create, manage bool
	}{
		{role.OrgSuperAdmin, true, true, true},
		{role.OrgAdmin, true, true, true},
		{role.OrgDispatcher, true, true, false},
		{role.OrgChief, true, true, false},
		{role.OrgGuard, false, true, false},
		{role.OrgClient, false, true, false},
	}
	for _, tt := range tests {
		sub := orgSubject(t, tt.role)
		assert.Equal(t, tt.assign, m.CanAssign(sub), "assign %s", tt.role)
		assert.Equal(t, tt.create, m.CanCreate(sub), "create %s", tt.role)
		assert.Equal(t, tt.manage, m.CanManageConfig(sub), "manage %s", tt.role)
	}

	pm := PlatformMatrix{}
	assert.True(t, pm.CanManageConfig(platformSubject(t, role.PlatformAdmin)))
	assert.False(t, pm.CanManageConfig(platformSubject(t, role.PlatformDispatcher)))
	assert.True(t, pm.CanAssign(platformSubject(t, role.PlatformDispatcher)))
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	sub := orgSubject(t, role.OrgAdmin)
	got := OrgMatrix{}.AllowedTransitions(sub, created)
	got[0] = closed
	assert.Equal(t, accepted, OrgMatrix{}.AllowedTransitions(sub, created)[0])
}

// Every allowed target is strictly forward, ordered, and closed has no successors.
func TestMatrices_ForwardOnlyProperty(t *testing.T) {
	subjects := make([]role.Subject, 0, len(role.OrgRoles)+len(role.PlatformRoles))
	matrices := make([]Matrix, 0, cap(subjects))
	for _, r := range role.OrgRoles {
		subjects = append(subjects, orgSubject(t, r))
		matrices = append(matrices, OrgMatrix{})
	}
	for _, r := range role.PlatformRoles {
		subjects = append(subjects, platformSubject(t, r))
		matrices = append(matrices, PlatformMatrix{})
	}

	property := func(who, from uint8) bool {
		i := int(who) % len(subjects)
		status := incident.Statuses[int(from)%len(incident.Statuses)]
		allowed := matrices[i].AllowedTransitions(subjects[i], status)
		if status == closed && len(allowed) != 0 {
			return false
		}
		prev := status
		for _, s := range allowed {
			if s <= prev {
				return false
			}
			prev = s
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 500}))
}

func TestGrantFor(t *testing.T) {
	inc := &incident.Incident{Status: inProgress}

	chief := GrantFor(OrgMatrix{}, orgSubject(t, role.OrgChief), inc)
	assert.Equal(t, []incident.Status{resolved}, chief.AllowedNext)
	assert.True(t, chief.CanAssign)
	assert.True(t, chief.CanMarkOnSite)

	client := GrantFor(OrgMatrix{}, orgSubject(t, role.OrgClient), inc)
	assert.NotNil(t, client.AllowedNext)
	assert.Empty(t, client.AllowedNext)
	assert.False(t, client.CanAssign)
	assert.False(t, client.CanMarkOnSite)

	done := GrantFor(OrgMatrix{}, orgSubject(t, role.OrgAdmin), &incident.Incident{Status: resolved})
	assert.False(t, done.CanAssign)
	assert.Equal(t, []incident.Status{closed}, done.AllowedNext)
}
