package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/lifecycle"
	"github.com/davidleathers/secops-incident-engine/internal/domain/permission"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/repository"
	"github.com/davidleathers/secops-incident-engine/internal/service/audit"
	"github.com/davidleathers/secops-incident-engine/internal/service/incidents"
)

// IncidentService is the incident engine as seen by the HTTP layer.
type IncidentService interface {
	Create(ctx context.Context, sub role.Subject, in lifecycle.NewIncident) (*incidents.Result, error)
	Get(ctx context.Context, sub role.Subject, id uuid.UUID) (*incident.Incident, error)
	Grant(ctx context.Context, sub role.Subject, id uuid.UUID) (*permission.Grant, error)
	Transition(ctx context.Context, sub role.Subject, id uuid.UUID, target incident.Status) (*incidents.Result, error)
	Assign(ctx context.Context, sub role.Subject, id, responderID uuid.UUID) (*incidents.Result, error)
	MarkOnSite(ctx context.Context, sub role.Subject, id uuid.UUID) (*incidents.Result, error)
	Comment(ctx context.Context, sub role.Subject, id uuid.UUID, body string) (*incidents.Result, error)
	Timeline(ctx context.Context, sub role.Subject, id uuid.UUID) ([]incident.Event, error)
}

// RoleResolver resolves the caller's roles on every request.
type RoleResolver interface {
	Resolve(ctx context.Context, actorID uuid.UUID) (*role.Snapshot, error)
	SetViewAs(ctx context.Context, actorID uuid.UUID, target role.OrgRole) (*role.Snapshot, error)
	ClearViewAs(ctx context.Context, actorID uuid.UUID) error
}

// AuditLogReader pages through the tenant-wide audit log.
type AuditLogReader interface {
	List(ctx context.Context, sub role.Subject, q repository.AuditQuery) ([]audit.Entry, error)
}

// Handler serves the incident and role endpoints.
type Handler struct {
	*BaseHandler
	incidents IncidentService
	roles     RoleResolver
	auditLog  AuditLogReader
	matrices  permission.Set
}

func NewHandler(base *BaseHandler, svc IncidentService, roles RoleResolver, auditLog AuditLogReader, matrices permission.Set) *Handler {
	return &Handler{
		BaseHandler: base,
		incidents:   svc,
		roles:       roles,
		auditLog:    auditLog,
		matrices:    matrices,
	}
}

func (h *Handler) snapshot(ctx context.Context) (*role.Snapshot, error) {
	actorID, ok := actorFromContext(ctx)
	if !ok {
		return nil, errors.NewUnauthorizedError("authorization required")
	}
	return h.roles.Resolve(ctx, actorID)
}

// subject resolves true roles fresh from persistence and binds them to the path scope.
func (h *Handler) subject(ctx context.Context, r *http.Request) (role.Subject, error) {
	scope, err := role.ParseScope(r.PathValue("scope"))
	if err != nil {
		return role.Subject{}, errors.NewNotFoundError("scope")
	}
	snap, err := h.snapshot(ctx)
	if err != nil {
		return role.Subject{}, err
	}
	return snap.Subject(scope)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, errors.ErrIncidentNotFound
	}
	return id, nil
}

func (h *Handler) Roles(ctx context.Context, _ *http.Request) (interface{}, error) {
	snap, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return newRolesResponse(snap), nil
}

func (h *Handler) SetViewAs(ctx context.Context, r *http.Request) (interface{}, error) {
	var req ViewAsRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	actorID, ok := actorFromContext(ctx)
	if !ok {
		return nil, errors.NewUnauthorizedError("authorization required")
	}
	target, err := role.ParseOrgRole(req.Role)
	if err != nil {
		return nil, err
	}
	snap, err := h.roles.SetViewAs(ctx, actorID, target)
	if err != nil {
		return nil, err
	}
	return newRolesResponse(snap), nil
}

func (h *Handler) ClearViewAs(ctx context.Context, _ *http.Request) (interface{}, error) {
	actorID, ok := actorFromContext(ctx)
	if !ok {
		return nil, errors.NewUnauthorizedError("authorization required")
	}
	return nil, h.roles.ClearViewAs(ctx, actorID)
}

func (h *Handler) CreateIncident(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	var req CreateIncidentRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}

	in := lifecycle.NewIncident{
		Title:       req.Title,
		Description: req.Description,
		Type:        incident.Type(req.Type),
		Severity:    incident.Severity(req.Severity),
	}
	if req.TenantID != "" {
		if in.TenantID, err = uuid.Parse(req.TenantID); err != nil {
			return nil, &ValidationError{Message: "Validation failed", Fields: map[string][]string{"tenant_id": {"Must be a valid UUID"}}}
		}
	}
	return h.incidents.Create(ctx, sub, in)
}

func (h *Handler) GetIncident(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	return h.incidents.Get(ctx, sub, id)
}

func (h *Handler) Permissions(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	return h.incidents.Grant(ctx, sub, id)
}

func (h *Handler) Transition(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	var req TransitionRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	target, err := incident.ParseStatus(req.Target)
	if err != nil {
		return nil, err
	}
	return h.incidents.Transition(ctx, sub, id, target)
}

func (h *Handler) Assign(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	var req AssignRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	responder, err := uuid.Parse(req.ResponderID)
	if err != nil {
		return nil, &ValidationError{Message: "Validation failed", Fields: map[string][]string{"responder_id": {"Must be a valid UUID"}}}
	}
	return h.incidents.Assign(ctx, sub, id, responder)
}

func (h *Handler) MarkOnSite(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	return h.incidents.MarkOnSite(ctx, sub, id)
}

func (h *Handler) Comment(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	var req CommentRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	return h.incidents.Comment(ctx, sub, id, req.Body)
}

func (h *Handler) Timeline(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	events, err := h.incidents.Timeline(ctx, sub, id)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []incident.Event{}
	}
	return TimelineResponse{IncidentID: id, Events: events}, nil
}

// AuditLog lists a tenant's audit entries. Only roles that manage configuration may read
// it; platform callers name the tenant with ?tenant_id=.
func (h *Handler) AuditLog(ctx context.Context, r *http.Request) (interface{}, error) {
	sub, err := h.subject(ctx, r)
	if err != nil {
		return nil, err
	}
	if h.auditLog == nil || !h.matrices.For(sub.Scope()).CanManageConfig(sub) {
		return nil, errors.NewNotPermittedError("AUDIT_LOG_NOT_ALLOWED", "audit log requires a configuration role")
	}

	q := repository.AuditQuery{TenantID: sub.TenantID()}
	values := r.URL.Query()
	if sub.CrossTenant() {
		if q.TenantID, err = uuid.Parse(values.Get("tenant_id")); err != nil {
			return nil, &ValidationError{Message: "Validation failed", Fields: map[string][]string{"tenant_id": {"This field is required"}}}
		}
	}
	if v := values.Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return nil, &ValidationError{Message: "Validation failed", Fields: map[string][]string{"limit": {"Must be a number"}}}
		}
	}
	if v := values.Get("before"); v != "" {
		if q.Before, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, &ValidationError{Message: "Validation failed", Fields: map[string][]string{"before": {"Must be an RFC 3339 timestamp"}}}
		}
	}

	entries, err := h.auditLog.List(ctx, sub, q)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return entries, nil
}
