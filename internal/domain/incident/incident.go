package incident

import (
	"time"

	"github.com/google/uuid"
)

// Incident is a tracked security event within one tenant.
type Incident struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        Type       `json:"type"`
	Severity    Severity   `json:"severity"`
	Status      Status     `json:"status"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	CreatedBy   uuid.UUID  `json:"created_by"`

	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	EnRouteAt  *time.Time `json:"en_route_at,omitempty"`
	OnSiteAt   *time.Time `json:"on_site_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	// Version increases by one on every row write and backs the optimistic check.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Timestamp returns the value of a lifecycle timestamp field.
func (i *Incident) Timestamp(f TimestampField) *time.Time {
	switch f {
	case FieldAcceptedAt:
		return i.AcceptedAt
	case FieldEnRouteAt:
		return i.EnRouteAt
	case FieldOnSiteAt:
		return i.OnSiteAt
	case FieldResolvedAt:
		return i.ResolvedAt
	case FieldClosedAt:
		return i.ClosedAt
	}
	return nil
}

func (i *Incident) setTimestamp(f TimestampField, v *time.Time) {
	switch f {
	case FieldAcceptedAt:
		i.AcceptedAt = v
	case FieldEnRouteAt:
		i.EnRouteAt = v
	case FieldOnSiteAt:
		i.OnSiteAt = v
	case FieldResolvedAt:
		i.ResolvedAt = v
	case FieldClosedAt:
		i.ClosedAt = v
	}
}

// Clone returns a deep copy.
func (i *Incident) Clone() *Incident {
	cp := *i
	if i.AssigneeID != nil {
		id := *i.AssigneeID
		cp.AssigneeID = &id
	}
	for _, f := range TimestampFields {
		if v := i.Timestamp(f); v != nil {
			t := *v
			cp.setTimestamp(f, &t)
		}
	}
	return &cp
}
