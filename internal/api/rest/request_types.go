package rest

// CreateIncidentRequest opens an incident. TenantID is required for platform callers and
// ignored for organization callers, who always create in their own tenant.
type CreateIncidentRequest struct {
	TenantID    string `json:"tenant_id" validate:"omitempty,uuid"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=4000"`
	Type        string `json:"type" validate:"required,oneof=alarm violation event fraud"`
	Severity    string `json:"severity" validate:"required,oneof=low medium high critical"`
}

type TransitionRequest struct {
	Target string `json:"target" validate:"required,oneof=created accepted in_progress resolved closed"`
}

type AssignRequest struct {
	ResponderID string `json:"responder_id" validate:"required,uuid"`
}

type CommentRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type ViewAsRequest struct {
	Role string `json:"role" validate:"required,oneof=super_admin org_admin dispatcher chief guard client"`
}
