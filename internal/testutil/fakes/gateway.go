// Package fakes provides in-memory stand-ins for the persistence gateway.
package fakes

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// Hooks inject faults. Errors are returned verbatim from the matching step.
type Hooks struct {
	// BeforeWrite runs outside the store lock before any row write or atomic apply.
	BeforeWrite func(m *incident.Mutation)
	ReadErr     error
	WriteErr    error
	AppendErr   error
	RevertErr   error
}

// Store is a tenant-aware in-memory incident store with optimistic checks. Wrap it in
// Transactional or Stepwise to choose which write contract the engine sees.
type Store struct {
	mu        sync.Mutex
	incidents map[uuid.UUID]*incident.Incident
	events    map[uuid.UUID][]incident.Event
	members   map[uuid.UUID]map[uuid.UUID]bool
	seq       int64
	hooks     Hooks
	reverts   int
}

func NewStore() *Store {
	return &Store{
		incidents: map[uuid.UUID]*incident.Incident{},
		events:    map[uuid.UUID][]incident.Event{},
		members:   map[uuid.UUID]map[uuid.UUID]bool{},
	}
}

func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

// Put stores a copy of inc.
func (s *Store) Put(inc *incident.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = inc.Clone()
}

// AddMember registers actorID as a member of tenantID.
func (s *Store) AddMember(tenantID, actorID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[tenantID] == nil {
		s.members[tenantID] = map[uuid.UUID]bool{}
	}
	s.members[tenantID][actorID] = true
}

// Incident returns the stored row, bypassing tenant checks.
func (s *Store) Incident(id uuid.UUID) *incident.Incident {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc, ok := s.incidents[id]; ok {
		return inc.Clone()
	}
	return nil
}

// Events returns the stored timeline, bypassing tenant checks.
func (s *Store) Events(id uuid.UUID) []incident.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]incident.Event(nil), s.events[id]...)
}

// Reverts counts compensating writes.
func (s *Store) Reverts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reverts
}

func (s *Store) GetIncident(_ context.Context, sub role.Subject, id uuid.UUID) (*incident.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hooks.ReadErr != nil {
		return nil, s.hooks.ReadErr
	}
	inc, err := s.visible(sub, id)
	if err != nil {
		return nil, err
	}
	return inc.Clone(), nil
}

func (s *Store) ListEvents(_ context.Context, sub role.Subject, id uuid.UUID) ([]incident.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.visible(sub, id); err != nil {
		return nil, err
	}
	return append([]incident.Event(nil), s.events[id]...), nil
}

func (s *Store) ResponderExists(_ context.Context, _ role.Subject, tenantID, responderID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[tenantID][responderID], nil
}

func (s *Store) visible(sub role.Subject, id uuid.UUID) (*incident.Incident, error) {
	inc, ok := s.incidents[id]
	if !ok || (!sub.CrossTenant() && inc.TenantID != sub.TenantID()) {
		return nil, errors.ErrIncidentNotFound
	}
	return inc, nil
}

func (s *Store) beforeWrite(m *incident.Mutation) {
	s.mu.Lock()
	hook := s.hooks.BeforeWrite
	s.mu.Unlock()
	if hook != nil {
		hook(m)
	}
}

// writeRowLocked applies the row part of m after checking its precondition.
func (s *Store) writeRowLocked(sub role.Subject, m *incident.Mutation) error {
	if m.Insert != nil {
		if !sub.CrossTenant() && m.Insert.TenantID != sub.TenantID() {
			return errors.NewDeniedError("insert incident")
		}
		s.incidents[m.Insert.ID] = m.Insert.Clone()
		return nil
	}
	current, err := s.visible(sub, m.IncidentID)
	if err != nil {
		return err
	}
	if !m.TouchesRow() {
		return nil
	}
	if !m.Matches(current) {
		return errors.NewConcurrentModificationError("incident precondition no longer holds")
	}
	s.incidents[m.IncidentID] = m.Apply(current)
	return nil
}

func (s *Store) appendLocked(ev incident.Event) incident.Event {
	s.seq++
	ev.Seq = s.seq
	s.events[ev.IncidentID] = append(s.events[ev.IncidentID], ev)
	return ev
}

// Transactional exposes the store through the single-unit-of-work contract.
type Transactional struct{ *Store }

func (t Transactional) ApplyMutation(_ context.Context, sub role.Subject, m *incident.Mutation) (incident.Event, error) {
	t.beforeWrite(m)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hooks.WriteErr != nil {
		return incident.Event{}, t.hooks.WriteErr
	}
	snapshot := t.incidents[m.IncidentID]
	if err := t.writeRowLocked(sub, m); err != nil {
		return incident.Event{}, err
	}
	if t.hooks.AppendErr != nil {
		// roll back as a database transaction would
		if snapshot == nil {
			delete(t.incidents, m.IncidentID)
		} else {
			t.incidents[m.IncidentID] = snapshot
		}
		return incident.Event{}, t.hooks.AppendErr
	}
	return t.appendLocked(m.Event), nil
}

// Stepwise exposes the store through the sequenced write contract.
type Stepwise struct{ *Store }

func (st Stepwise) WriteIncident(_ context.Context, sub role.Subject, m *incident.Mutation) error {
	st.beforeWrite(m)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.hooks.WriteErr != nil {
		return st.hooks.WriteErr
	}
	return st.writeRowLocked(sub, m)
}

func (st Stepwise) AppendEvent(_ context.Context, sub role.Subject, ev incident.Event) (incident.Event, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.hooks.AppendErr != nil {
		return incident.Event{}, st.hooks.AppendErr
	}
	if _, err := st.visible(sub, ev.IncidentID); err != nil {
		return incident.Event{}, err
	}
	return st.appendLocked(ev), nil
}

func (st Stepwise) RevertIncident(_ context.Context, sub role.Subject, m *incident.Mutation) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.reverts++
	if st.hooks.RevertErr != nil {
		return st.hooks.RevertErr
	}
	if m.Insert != nil {
		delete(st.incidents, m.IncidentID)
		return nil
	}
	current, err := st.visible(sub, m.IncidentID)
	if err != nil {
		return err
	}
	if current.Version != m.Expect.Version+1 {
		return errors.NewConcurrentModificationError("incident changed before it could be reverted")
	}
	st.incidents[m.IncidentID] = m.Compensate(current)
	return nil
}
