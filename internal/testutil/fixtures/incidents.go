package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// IncidentBuilder builds test Incident entities
type IncidentBuilder struct {
	t        *testing.T
	id       uuid.UUID
	tenantID uuid.UUID
	title    string
	status   incident.Status
	severity incident.Severity
	assignee *uuid.UUID
	version  int
	at       time.Time
}

// NewIncidentBuilder creates a new IncidentBuilder with defaults
func NewIncidentBuilder(t *testing.T) *IncidentBuilder {
	t.Helper()
	return &IncidentBuilder{
		t:        t,
		id:       uuid.New(),
		tenantID: uuid.New(),
		title:    "Motion detected in loading bay",
		status:   incident.StatusCreated,
		severity: incident.SeverityMedium,
		version:  1,
		at:       time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC),
	}
}

func (b *IncidentBuilder) WithID(id uuid.UUID) *IncidentBuilder {
	b.id = id
	return b
}

func (b *IncidentBuilder) WithTenant(id uuid.UUID) *IncidentBuilder {
	b.tenantID = id
	return b
}

func (b *IncidentBuilder) WithStatus(s incident.Status) *IncidentBuilder {
	b.status = s
	return b
}

func (b *IncidentBuilder) WithAssignee(id uuid.UUID) *IncidentBuilder {
	b.assignee = &id
	return b
}

func (b *IncidentBuilder) WithVersion(v int) *IncidentBuilder {
	b.version = v
	return b
}

// Build creates the incident. Entry timestamps for every status already passed through the
// linear path are filled in.
func (b *IncidentBuilder) Build() *incident.Incident {
	b.t.Helper()
	require.True(b.t, b.status.Valid(), "invalid status")

	inc := &incident.Incident{
		ID:        b.id,
		TenantID:  b.tenantID,
		Title:     b.title,
		Type:      incident.TypeAlarm,
		Severity:  b.severity,
		Status:    b.status,
		CreatedBy: uuid.New(),
		Version:   b.version,
		CreatedAt: b.at,
		UpdatedAt: b.at,
	}
	if b.assignee != nil {
		id := *b.assignee
		inc.AssigneeID = &id
	}
	stamp := b.at
	for s := incident.StatusAccepted; s <= b.status; s++ {
		stamp = stamp.Add(time.Minute)
		ts := stamp
		switch s {
		case incident.StatusAccepted:
			inc.AcceptedAt = &ts
		case incident.StatusInProgress:
			inc.EnRouteAt = &ts
		case incident.StatusResolved:
			inc.ResolvedAt = &ts
		case incident.StatusClosed:
			inc.ClosedAt = &ts
		}
	}
	return inc
}

// OrgSubject resolves an organization-scoped subject for a fresh actor in tenantID.
func OrgSubject(t *testing.T, tenantID uuid.UUID, r role.OrgRole) role.Subject {
	t.Helper()
	snap := &role.Snapshot{ActorID: uuid.New(), OrgID: tenantID, OrgRole: r}
	sub, err := snap.Subject(role.ScopeOrganization)
	require.NoError(t, err)
	return sub
}

// PlatformSubject resolves a platform-scoped subject for a fresh staff actor.
func PlatformSubject(t *testing.T, r role.PlatformRole) role.Subject {
	t.Helper()
	snap := &role.Snapshot{ActorID: uuid.New(), OrgID: uuid.New(), OrgRole: role.OrgClient, PlatformRole: r, IsStaff: true}
	sub, err := snap.Subject(role.ScopePlatform)
	require.NoError(t, err)
	return sub
}
