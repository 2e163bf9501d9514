package lifecycle

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/permission"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

const (
	MaxTitleLength   = 200
	MaxCommentLength = 4000
)

// Machine plans incident changes. It never touches storage: every method validates against
// the persisted state it is handed and returns a Mutation for the caller to commit.
type Machine struct {
	matrices permission.Set
	clock    incident.Clock
	newID    func() uuid.UUID
}

func NewMachine(matrices permission.Set, clock incident.Clock) *Machine {
	if clock == nil {
		clock = incident.RealClock{}
	}
	return &Machine{matrices: matrices, clock: clock, newID: uuid.New}
}

// Matrix returns the matrix governing the subject's scope.
func (m *Machine) Matrix(sub role.Subject) permission.Matrix {
	return m.matrices.For(sub.Scope())
}

// NewIncident describes an incident to create.
type NewIncident struct {
	// TenantID is honored for platform callers only; organization callers always create in
	// their own tenant.
	TenantID    uuid.UUID
	Title       string
	Description string
	Type        incident.Type
	Severity    incident.Severity
}

func (m *Machine) Create(sub role.Subject, in NewIncident) (*incident.Mutation, error) {
	if !m.Matrix(sub).CanCreate(sub) {
		return nil, errors.NewNotPermittedError("CREATE_NOT_ALLOWED", "role may not create incidents").
			WithDetails(map[string]interface{}{"role": sub.RoleName()})
	}

	tenant := sub.TenantID()
	if sub.CrossTenant() {
		if in.TenantID == uuid.Nil {
			return nil, errors.NewValidationError("TENANT_REQUIRED", "platform callers must name the organization")
		}
		tenant = in.TenantID
	}

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		return nil, errors.NewValidationError("TITLE_REQUIRED", "title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return nil, errors.NewValidationError("TITLE_TOO_LONG", fmt.Sprintf("title exceeds %d characters", MaxTitleLength))
	case !in.Type.Valid():
		return nil, errors.NewValidationError("INVALID_TYPE", fmt.Sprintf("unknown incident type %q", in.Type))
	case !in.Severity.Valid():
		return nil, errors.NewValidationError("INVALID_SEVERITY", fmt.Sprintf("unknown severity %q", in.Severity))
	}

	now := m.clock.Now()
	inc := &incident.Incident{
		ID:          m.newID(),
		TenantID:    tenant,
		Title:       title,
		Description: in.Description,
		Type:        in.Type,
		Severity:    in.Severity,
		Status:      incident.StatusCreated,
		CreatedBy:   sub.ActorID(),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return &incident.Mutation{
		IncidentID: inc.ID,
		TenantID:   tenant,
		Insert:     inc,
		Event: m.event(sub, inc, incident.CreatedPayload{
			Title:    inc.Title,
			Type:     inc.Type,
			Severity: inc.Severity,
		}, now),
		At: now,
	}, nil
}

// Transition plans moving inc to target. The check runs against inc.Status as persisted;
// timestamps for earlier statuses are left untouched.
func (m *Machine) Transition(sub role.Subject, inc *incident.Incident, target incident.Status) (*incident.Mutation, error) {
	if err := m.checkVisible(sub, inc); err != nil {
		return nil, err
	}
	if !permission.Allows(m.Matrix(sub), sub, inc.Status, target) {
		return nil, errors.NewNotPermittedError("TRANSITION_NOT_ALLOWED",
			fmt.Sprintf("transition %s -> %s not allowed", inc.Status, target)).
			WithDetails(map[string]interface{}{
				"from": inc.Status.String(),
				"to":   target.String(),
				"role": sub.RoleName(),
			})
	}

	now := m.clock.Now()
	stamps := map[incident.TimestampField]time.Time{}
	if f, ok := incident.EntryTimestamp(target); ok && inc.Timestamp(f) == nil {
		stamps[f] = now
	}

	return &incident.Mutation{
		IncidentID: inc.ID,
		TenantID:   inc.TenantID,
		Expect:     incident.Precondition{Status: inc.Status, Version: inc.Version},
		Status:     &target,
		Timestamps: stamps,
		Event:      m.event(sub, inc, incident.StatusChangedPayload{From: inc.Status, To: target}, now),
		At:         now,
	}, nil
}

// Assign plans setting the responder. Status is never changed.
func (m *Machine) Assign(sub role.Subject, inc *incident.Incident, responder uuid.UUID) (*incident.Mutation, error) {
	if err := m.checkVisible(sub, inc); err != nil {
		return nil, err
	}
	if !m.Matrix(sub).CanAssign(sub) {
		return nil, errors.NewNotPermittedError("ASSIGN_NOT_ALLOWED", "role may not assign responders").
			WithDetails(map[string]interface{}{"role": sub.RoleName()})
	}
	if !inc.Status.Assignable() {
		return nil, errors.NewNotPermittedError("ASSIGN_NOT_ALLOWED",
			fmt.Sprintf("incidents in status %s cannot be reassigned", inc.Status)).
			WithDetails(map[string]interface{}{"status": inc.Status.String()})
	}
	if responder == uuid.Nil {
		return nil, errors.NewValidationError("RESPONDER_REQUIRED", "responder is required")
	}

	now := m.clock.Now()
	to := responder
	return &incident.Mutation{
		IncidentID:      inc.ID,
		TenantID:        inc.TenantID,
		Expect:          incident.Precondition{Status: inc.Status, Version: inc.Version},
		AssigneeID:      &to,
		PriorAssigneeID: inc.AssigneeID,
		Event:           m.event(sub, inc, incident.AssignedPayload{From: inc.AssigneeID, To: to}, now),
		At:              now,
	}, nil
}

// MarkOnSite plans stamping on_site_at. Only active responders may do it, only while the
// incident is in progress, and only once.
func (m *Machine) MarkOnSite(sub role.Subject, inc *incident.Incident) (*incident.Mutation, error) {
	if err := m.checkVisible(sub, inc); err != nil {
		return nil, err
	}
	if !permission.CanMarkOnSite(m.Matrix(sub), sub, inc) {
		return nil, errors.NewNotPermittedError("ON_SITE_NOT_ALLOWED", "cannot mark this incident on site").
			WithDetails(map[string]interface{}{"status": inc.Status.String(), "role": sub.RoleName()})
	}

	now := m.clock.Now()
	return &incident.Mutation{
		IncidentID: inc.ID,
		TenantID:   inc.TenantID,
		Expect:     incident.Precondition{Status: inc.Status, Version: inc.Version},
		Timestamps: map[incident.TimestampField]time.Time{incident.FieldOnSiteAt: now},
		Event:      m.event(sub, inc, incident.OnSitePayload{At: now}, now),
		At:         now,
	}, nil
}

// Comment plans appending a note. Anyone who can read the incident may comment; the row is
// not written.
func (m *Machine) Comment(sub role.Subject, inc *incident.Incident, body string) (*incident.Mutation, error) {
	if err := m.checkVisible(sub, inc); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		return nil, errors.NewValidationError("COMMENT_REQUIRED", "comment body is required")
	case utf8.RuneCountInString(body) > MaxCommentLength:
		return nil, errors.NewValidationError("COMMENT_TOO_LONG", fmt.Sprintf("comment exceeds %d characters", MaxCommentLength))
	}

	now := m.clock.Now()
	return &incident.Mutation{
		IncidentID: inc.ID,
		TenantID:   inc.TenantID,
		Expect:     incident.Precondition{Status: inc.Status, Version: inc.Version},
		Event:      m.event(sub, inc, incident.CommentPayload{Body: body}, now),
		At:         now,
	}, nil
}

// checkVisible hides other tenants' incidents from organization callers.
func (m *Machine) checkVisible(sub role.Subject, inc *incident.Incident) error {
	if inc == nil || (!sub.CrossTenant() && inc.TenantID != sub.TenantID()) {
		return errors.ErrIncidentNotFound
	}
	return nil
}

func (m *Machine) event(sub role.Subject, inc *incident.Incident, p incident.Payload, at time.Time) incident.Event {
	return incident.Event{
		ID:         m.newID(),
		IncidentID: inc.ID,
		TenantID:   inc.TenantID,
		Kind:       p.EventKind(),
		Payload:    p,
		ActorID:    sub.ActorID(),
		ActorRole:  sub.RoleName(),
		CreatedAt:  at,
	}
}
