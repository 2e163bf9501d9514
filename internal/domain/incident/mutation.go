package incident

import (
	"time"

	"github.com/google/uuid"
)

// Precondition is the persisted state a mutation was planned against. Stores apply a
// mutation only while the row still matches it.
type Precondition struct {
	Status  Status
	Version int
}

// Mutation is the unit of work produced by the state machine: an optional row change plus
// exactly one timeline event. Stores persist both or neither.
type Mutation struct {
	IncidentID uuid.UUID
	TenantID   uuid.UUID

	// Insert is set when the mutation creates the incident.
	Insert *Incident

	Expect          Precondition
	Status          *Status
	AssigneeID      *uuid.UUID
	PriorAssigneeID *uuid.UUID
	Timestamps      map[TimestampField]time.Time

	Event Event
	At    time.Time
}

// TouchesRow reports whether the incident row itself is written.
func (m *Mutation) TouchesRow() bool {
	return m.Insert != nil || m.Status != nil || m.AssigneeID != nil || len(m.Timestamps) > 0
}

// Matches reports whether inc still satisfies the precondition.
func (m *Mutation) Matches(inc *Incident) bool {
	return inc.Status == m.Expect.Status && inc.Version == m.Expect.Version
}

// Apply returns a copy of inc with the row changes applied. Timestamps already holding a
// value are never overwritten.
func (m *Mutation) Apply(inc *Incident) *Incident {
	if m.Insert != nil {
		return m.Insert.Clone()
	}
	out := inc.Clone()
	if !m.TouchesRow() {
		return out
	}
	if m.Status != nil {
		out.Status = *m.Status
	}
	if m.AssigneeID != nil {
		id := *m.AssigneeID
		out.AssigneeID = &id
	}
	for f, v := range m.Timestamps {
		if out.Timestamp(f) == nil {
			t := v
			out.setTimestamp(f, &t)
		}
	}
	out.Version++
	out.UpdatedAt = m.At
	return out
}

// Compensate undoes Apply on a store that could not write the row and its event together.
// It restores the prior status and assignee and clears only the timestamps this mutation set.
func (m *Mutation) Compensate(applied *Incident) *Incident {
	out := applied.Clone()
	if m.Status != nil {
		out.Status = m.Expect.Status
	}
	if m.AssigneeID != nil {
		if m.PriorAssigneeID == nil {
			out.AssigneeID = nil
		} else {
			id := *m.PriorAssigneeID
			out.AssigneeID = &id
		}
	}
	for f := range m.Timestamps {
		out.setTimestamp(f, nil)
	}
	out.Version++
	out.UpdatedAt = m.At
	return out
}
