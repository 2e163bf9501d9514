package incident

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// EventKind names an append-only timeline entry.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventStatusChanged EventKind = "status_changed"
	EventAssigned      EventKind = "assigned"
	EventComment       EventKind = "comment"
	EventOnSite        EventKind = "on_site"
)

// Payload is the kind-specific body of an event.
type Payload interface {
	EventKind() EventKind
}

type CreatedPayload struct {
	Title    string   `json:"title"`
	Type     Type     `json:"type"`
	Severity Severity `json:"severity"`
}

type StatusChangedPayload struct {
	From Status `json:"from"`
	To   Status `json:"to"`
}

type AssignedPayload struct {
	From *uuid.UUID `json:"from,omitempty"`
	To   uuid.UUID  `json:"to"`
}

type CommentPayload struct {
	Body string `json:"body"`
}

type OnSitePayload struct {
	At time.Time `json:"at"`
}

func (CreatedPayload) EventKind() EventKind       { return EventCreated }
func (StatusChangedPayload) EventKind() EventKind { return EventStatusChanged }
func (AssignedPayload) EventKind() EventKind      { return EventAssigned }
func (CommentPayload) EventKind() EventKind       { return EventComment }
func (OnSitePayload) EventKind() EventKind        { return EventOnSite }

// DecodePayload parses a stored payload for the given kind.
func DecodePayload(kind EventKind, raw []byte) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch kind {
	case EventCreated:
		var v CreatedPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventStatusChanged:
		var v StatusChangedPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventAssigned:
		var v AssignedPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventComment:
		var v CommentPayload
		err = json.Unmarshal(raw, &v)
		p = v
	case EventOnSite:
		var v OnSitePayload
		err = json.Unmarshal(raw, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}

// Event is one immutable timeline entry. Seq is assigned by the store on append and breaks
// ties between events sharing a timestamp.
type Event struct {
	ID         uuid.UUID `json:"id"`
	IncidentID uuid.UUID `json:"incident_id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	Kind       EventKind `json:"kind"`
	Payload    Payload   `json:"payload"`
	ActorID    uuid.UUID `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	Seq        int64     `json:"seq"`
	CreatedAt  time.Time `json:"created_at"`
}

// SortTimeline orders events by creation time, then insertion sequence.
func SortTimeline(events []Event) {
	sort.SliceStable(events, func(a, b int) bool {
		if !events[a].CreatedAt.Equal(events[b].CreatedAt) {
			return events[a].CreatedAt.Before(events[b].CreatedAt)
		}
		return events[a].Seq < events[b].Seq
	})
}

// UnmarshalJSON decodes the payload according to Kind.
func (e *Event) UnmarshalJSON(b []byte) error {
	type plain Event
	var aux struct {
		plain
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = Event(aux.plain)
	e.Payload = nil
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		return nil
	}
	p, err := DecodePayload(e.Kind, aux.Payload)
	if err != nil {
		return err
	}
	e.Payload = p
	return nil
}
