package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// ErrorResponse carries the user-facing error. Refresh asks the client to re-fetch the
// incident; Reauthenticate asks it to sign the user out.
type ErrorResponse struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Refresh        bool                   `json:"refresh,omitempty"`
	Reauthenticate bool                   `json:"reauthenticate,omitempty"`
	Fields         map[string][]string    `json:"fields,omitempty"`
	TraceID        string                 `json:"trace_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// RolesResponse shows true roles next to the display role. Only Display reflects a
// "view as" override.
type RolesResponse struct {
	ActorID      uuid.UUID        `json:"actor_id"`
	OrgID        uuid.UUID        `json:"org_id"`
	OrgRole      role.OrgRole     `json:"org_role"`
	PlatformRole string           `json:"platform_role,omitempty"`
	IsStaff      bool             `json:"is_staff"`
	Display      role.DisplayRole `json:"display"`
}

func newRolesResponse(s *role.Snapshot) RolesResponse {
	resp := RolesResponse{
		ActorID: s.ActorID,
		OrgID:   s.OrgID,
		OrgRole: s.OrgRole,
		IsStaff: s.IsStaff,
		Display: s.Display(),
	}
	if s.IsStaff {
		resp.PlatformRole = string(s.PlatformRole)
	}
	return resp
}

type TimelineResponse struct {
	IncidentID uuid.UUID        `json:"incident_id"`
	Events     []incident.Event `json:"events"`
}
