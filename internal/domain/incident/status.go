package incident

import (
	"fmt"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
)

// Status is an incident's position in its lifecycle. Values are ordered: a status may only
// move to a strictly greater one.
type Status int

const (
	StatusCreated Status = iota
	StatusAccepted
	StatusInProgress
	StatusResolved
	StatusClosed
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusCreated, StatusAccepted, StatusInProgress, StatusResolved, StatusClosed}

var statusNames = [...]string{"created", "accepted", "in_progress", "resolved", "closed"}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) Valid() bool { return s >= StatusCreated && s <= StatusClosed }

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusClosed }

// Assignable reports whether the responder may still change in this status.
func (s Status) Assignable() bool { return s < StatusResolved }

func ParseStatus(v string) (Status, error) {
	for i, name := range statusNames {
		if name == v {
			return Status(i), nil
		}
	}
	return 0, errors.NewValidationError("INVALID_STATUS", fmt.Sprintf("unknown incident status %q", v))
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TimestampField names a lifecycle timestamp column.
type TimestampField string

const (
	FieldAcceptedAt TimestampField = "accepted_at"
	FieldEnRouteAt  TimestampField = "en_route_at"
	FieldOnSiteAt   TimestampField = "on_site_at"
	FieldResolvedAt TimestampField = "resolved_at"
	FieldClosedAt   TimestampField = "closed_at"
)

// TimestampFields lists every lifecycle timestamp column.
var TimestampFields = []TimestampField{FieldAcceptedAt, FieldEnRouteAt, FieldOnSiteAt, FieldResolvedAt, FieldClosedAt}

// entryTimestamp maps a status to the field stamped on entering it. on_site_at has no
// entry here; only the explicit on-site action sets it.
var entryTimestamp = map[Status]TimestampField{
	StatusAccepted:   FieldAcceptedAt,
	StatusInProgress: FieldEnRouteAt,
	StatusResolved:   FieldResolvedAt,
	StatusClosed:     FieldClosedAt,
}

// EntryTimestamp returns the field stamped when an incident enters target.
func EntryTimestamp(target Status) (TimestampField, bool) {
	f, ok := entryTimestamp[target]
	return f, ok
}

// Type classifies what happened.
type Type string

const (
	TypeAlarm     Type = "alarm"
	TypeViolation Type = "violation"
	TypeEvent     Type = "event"
	TypeFraud     Type = "fraud"
)

func (t Type) Valid() bool {
	switch t {
	case TypeAlarm, TypeViolation, TypeEvent, TypeFraud:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
