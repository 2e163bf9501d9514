package incidents

import (
	"context"

	"github.com/google/uuid"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// Gateway is the read side of the persistence boundary. Reads through an organization
// subject are confined to its tenant; the store enforces this on its own as well.
type Gateway interface {
	GetIncident(ctx context.Context, sub role.Subject, id uuid.UUID) (*incident.Incident, error)
	ListEvents(ctx context.Context, sub role.Subject, incidentID uuid.UUID) ([]incident.Event, error)
	ResponderExists(ctx context.Context, sub role.Subject, tenantID, responderID uuid.UUID) (bool, error)
}

// TransactionalWriter persists a mutation's row change and event in one unit of work.
// It returns ConcurrentModification when the precondition no longer holds, Denied when the
// store's policy rejects the write and NotFound when the row is gone or invisible.
type TransactionalWriter interface {
	ApplyMutation(ctx context.Context, sub role.Subject, m *incident.Mutation) (incident.Event, error)
}

// StepWriter is implemented by stores that cannot span the row write and the event append
// in one transaction. The engine sequences the steps and compensates on failure.
type StepWriter interface {
	WriteIncident(ctx context.Context, sub role.Subject, m *incident.Mutation) error
	AppendEvent(ctx context.Context, sub role.Subject, ev incident.Event) (incident.Event, error)
	RevertIncident(ctx context.Context, sub role.Subject, m *incident.Mutation) error
}

// AuditEmitter receives every committed event.
type AuditEmitter interface {
	Emit(ctx context.Context, ev incident.Event)
}
