package incidents

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/lifecycle"
	"github.com/davidleathers/secops-incident-engine/internal/domain/permission"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/secops-incident-engine/internal/metrics"
)

type Options struct {
	// MaxConflictRetries bounds automatic re-fetch and re-evaluate cycles after a lost
	// optimistic check.
	MaxConflictRetries int
	// RequestTimeout caps each operation, including its persistence calls.
	RequestTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{MaxConflictRetries: 2, RequestTimeout: 5 * time.Second}
}

// Result is a committed change: the incident as it now stands and the event recorded.
type Result struct {
	Incident *incident.Incident `json:"incident"`
	Event    incident.Event     `json:"event"`
}

// Engine runs incident operations against the persistence gateway. It keeps no state
// between calls; the persisted status is re-read before every decision.
type Engine struct {
	gateway Gateway
	tx      TransactionalWriter
	steps   StepWriter
	machine *lifecycle.Machine
	audit   AuditEmitter
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
}

// NewEngine wires the engine. gateway must also implement TransactionalWriter or StepWriter;
// the transactional path is preferred when both are available.
func NewEngine(gateway Gateway, machine *lifecycle.Machine, audit AuditEmitter, opts Options, logger *zap.Logger, m *metrics.Registry) (*Engine, error) {
	if gateway == nil || machine == nil {
		return nil, fmt.Errorf("incidents: gateway and machine are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConflictRetries < 0 {
		opts.MaxConflictRetries = 0
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultOptions().RequestTimeout
	}

	e := &Engine{
		gateway: gateway,
		machine: machine,
		audit:   audit,
		opts:    opts,
		logger:  logger.Named("incidents"),
		metrics: m,
		tracer:  telemetry.Tracer("secops/incidents"),
	}
	if tx, ok := gateway.(TransactionalWriter); ok {
		e.tx = tx
	} else if steps, ok := gateway.(StepWriter); ok {
		e.steps = steps
	} else {
		return nil, fmt.Errorf("incidents: gateway %T implements neither TransactionalWriter nor StepWriter", gateway)
	}
	return e, nil
}

// Create records a new incident in status created.
func (e *Engine) Create(ctx context.Context, sub role.Subject, in lifecycle.NewIncident) (*Result, error) {
	ctx, cancel, span := e.begin(ctx, "create", sub, uuid.Nil)
	defer cancel()
	defer span.End()

	m, err := e.machine.Create(sub, in)
	if err != nil {
		return nil, e.fail(ctx, span, "create", err)
	}
	span.SetAttributes(attribute.String("incident.id", m.IncidentID.String()))

	ev, err := e.commit(ctx, "create", sub, m)
	if err != nil {
		return nil, e.fail(ctx, span, "create", err)
	}
	return e.succeed(ctx, "create", m.Apply(nil), ev), nil
}

// Transition moves an incident to target if the subject's true role allows it from the
// persisted status.
func (e *Engine) Transition(ctx context.Context, sub role.Subject, id uuid.UUID, target incident.Status) (*Result, error) {
	return e.mutate(ctx, "transition", sub, id, func(_ context.Context, inc *incident.Incident) (*incident.Mutation, error) {
		return e.machine.Transition(sub, inc, target)
	})
}

// Assign sets the incident's responder. The responder must exist in the incident's tenant.
func (e *Engine) Assign(ctx context.Context, sub role.Subject, id, responderID uuid.UUID) (*Result, error) {
	return e.mutate(ctx, "assign", sub, id, func(ctx context.Context, inc *incident.Incident) (*incident.Mutation, error) {
		m, err := e.machine.Assign(sub, inc, responderID)
		if err != nil {
			return nil, err
		}
		ok, err := e.gateway.ResponderExists(ctx, sub, inc.TenantID, responderID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.ErrResponderNotFound
		}
		return m, nil
	})
}

// MarkOnSite stamps on_site_at on an in-progress incident.
func (e *Engine) MarkOnSite(ctx context.Context, sub role.Subject, id uuid.UUID) (*Result, error) {
	return e.mutate(ctx, "mark_on_site", sub, id, func(_ context.Context, inc *incident.Incident) (*incident.Mutation, error) {
		return e.machine.MarkOnSite(sub, inc)
	})
}

// Comment appends a note to the timeline without touching the incident row.
func (e *Engine) Comment(ctx context.Context, sub role.Subject, id uuid.UUID, body string) (*Result, error) {
	return e.mutate(ctx, "comment", sub, id, func(_ context.Context, inc *incident.Incident) (*incident.Mutation, error) {
		return e.machine.Comment(sub, inc, body)
	})
}

// Get returns the incident if the subject can see it.
func (e *Engine) Get(ctx context.Context, sub role.Subject, id uuid.UUID) (*incident.Incident, error) {
	ctx, cancel, span := e.begin(ctx, "get", sub, id)
	defer cancel()
	defer span.End()

	inc, err := e.gateway.GetIncident(ctx, sub, id)
	if err != nil {
		return nil, e.failRead(ctx, span, err)
	}
	return inc, nil
}

// Grant computes what the subject may do next on the incident, from its persisted status.
func (e *Engine) Grant(ctx context.Context, sub role.Subject, id uuid.UUID) (*permission.Grant, error) {
	inc, err := e.Get(ctx, sub, id)
	if err != nil {
		return nil, err
	}
	g := permission.GrantFor(e.machine.Matrix(sub), sub, inc)
	return &g, nil
}

// Timeline returns the incident's events ordered by time, then insertion sequence.
func (e *Engine) Timeline(ctx context.Context, sub role.Subject, id uuid.UUID) ([]incident.Event, error) {
	ctx, cancel, span := e.begin(ctx, "timeline", sub, id)
	defer cancel()
	defer span.End()

	if _, err := e.gateway.GetIncident(ctx, sub, id); err != nil {
		return nil, e.failRead(ctx, span, err)
	}
	events, err := e.gateway.ListEvents(ctx, sub, id)
	if err != nil {
		return nil, e.failRead(ctx, span, err)
	}
	incident.SortTimeline(events)
	return events, nil
}

type planFunc func(ctx context.Context, inc *incident.Incident) (*incident.Mutation, error)

// mutate re-reads, plans and commits. A lost optimistic check is retried only while the
// persisted status is still the one the caller acted on; once it has moved, the caller gets
// ConcurrentModification carrying the current status.
func (e *Engine) mutate(ctx context.Context, op string, sub role.Subject, id uuid.UUID, plan planFunc) (*Result, error) {
	ctx, cancel, span := e.begin(ctx, op, sub, id)
	defer cancel()
	defer span.End()

	var acted *incident.Precondition
	for attempt := 0; ; attempt++ {
		inc, err := e.gateway.GetIncident(ctx, sub, id)
		if err != nil {
			return nil, e.fail(ctx, span, op, err)
		}
		if acted != nil && inc.Status != acted.Status {
			return nil, e.fail(ctx, span, op, conflictWith(inc))
		}

		m, err := plan(ctx, inc)
		if err != nil {
			return nil, e.fail(ctx, span, op, err)
		}

		ev, err := e.commit(ctx, op, sub, m)
		if err == nil {
			return e.succeed(ctx, op, m.Apply(inc), ev), nil
		}
		if !errors.IsConcurrentModification(err) || attempt >= e.opts.MaxConflictRetries {
			return nil, e.fail(ctx, span, op, err)
		}

		e.metrics.ConflictRetry()
		telemetry.WithTrace(ctx, e.logger).Info("concurrent modification, refetching",
			zap.String("operation", op),
			zap.String("incident_id", id.String()),
			zap.Int("attempt", attempt+1),
			zap.Int("expected_version", m.Expect.Version),
		)
		acted = &m.Expect
	}
}

func (e *Engine) commit(ctx context.Context, op string, sub role.Subject, m *incident.Mutation) (incident.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, e.tracer, "gateway.apply_mutation",
		attribute.String("operation", op),
		attribute.Bool("transactional", e.tx != nil),
	)
	defer span.End()

	var (
		ev  incident.Event
		err error
	)
	if e.tx != nil {
		ev, err = e.tx.ApplyMutation(ctx, sub, m)
	} else {
		ev, err = e.commitSteps(ctx, op, sub, m)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.IsDenied(err) {
			e.deniedAnomaly(ctx, op, sub, m, err)
		}
		return incident.Event{}, err
	}
	return ev, nil
}

// commitSteps writes the row, then the event. If the append fails the row write is
// reverted so the timeline never misses a status change.
func (e *Engine) commitSteps(ctx context.Context, op string, sub role.Subject, m *incident.Mutation) (incident.Event, error) {
	if m.TouchesRow() {
		if err := e.steps.WriteIncident(ctx, sub, m); err != nil {
			return incident.Event{}, err
		}
	}

	ev, appendErr := e.steps.AppendEvent(ctx, sub, m.Event)
	if appendErr == nil {
		return ev, nil
	}
	if !m.TouchesRow() {
		return incident.Event{}, appendErr
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.RequestTimeout)
	defer cancel()
	revertErr := e.steps.RevertIncident(rctx, sub, m)

	e.metrics.TimelineInconsistency()
	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("incident_id", m.IncidentID.String()),
		zap.String("tenant_id", m.TenantID.String()),
		zap.String("event_id", m.Event.ID.String()),
		zap.Bool("reverted", revertErr == nil),
		zap.NamedError("append_error", appendErr),
	}
	if revertErr != nil {
		fields = append(fields, zap.NamedError("revert_error", revertErr))
	}
	telemetry.WithTrace(ctx, e.logger).Error("fatal timeline inconsistency", fields...)

	return incident.Event{}, appendErr
}

func (e *Engine) deniedAnomaly(ctx context.Context, op string, sub role.Subject, m *incident.Mutation, err error) {
	e.metrics.DeniedAnomaly(op)
	telemetry.WithTrace(ctx, e.logger).Error("persistence policy denied approved action",
		zap.String("operation", op),
		zap.String("actor_id", sub.ActorID().String()),
		zap.String("role", sub.RoleName()),
		zap.String("incident_id", m.IncidentID.String()),
		zap.String("tenant_id", m.TenantID.String()),
		zap.Error(err),
	)
}

func (e *Engine) begin(ctx context.Context, op string, sub role.Subject, id uuid.UUID) (context.Context, context.CancelFunc, trace.Span) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	attrs := []attribute.KeyValue{
		attribute.String("operation", op),
		attribute.String("scope", sub.Scope().String()),
		attribute.String("role", sub.RoleName()),
	}
	if id != uuid.Nil {
		attrs = append(attrs, attribute.String("incident.id", id.String()))
	}
	ctx, span := telemetry.StartSpan(ctx, e.tracer, "lifecycle."+op, attrs...)
	return ctx, cancel, span
}

func (e *Engine) succeed(ctx context.Context, op string, inc *incident.Incident, ev incident.Event) *Result {
	e.metrics.ObserveOperation(op, "ok", "")
	if e.audit != nil {
		e.audit.Emit(ctx, ev)
	}
	return &Result{Incident: inc, Event: ev}
}

func (e *Engine) fail(ctx context.Context, span trace.Span, op string, err error) error {
	err = classify(ctx, err)
	telemetry.RecordError(span, err)
	e.metrics.ObserveOperation(op, "rejected", reason(err))
	return err
}

func (e *Engine) failRead(ctx context.Context, span trace.Span, err error) error {
	err = classify(ctx, err)
	telemetry.RecordError(span, err)
	return err
}

// classify turns timeouts into TransientError and leaves typed errors alone. Anything
// untyped is an internal failure.
func classify(ctx context.Context, err error) error {
	var appErr *errors.AppError
	typed := stderrors.As(err, &appErr)
	if typed && appErr.Type != errors.ErrorTypeInternal {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTransientError("operation timed out, refresh the incident before retrying").
			WithDetails(map[string]interface{}{"refetch_required": true}).
			WithCause(err)
	}
	if typed {
		return err
	}
	return errors.NewInternalError("incident operation failed").WithCause(err)
}

func conflictWith(current *incident.Incident) error {
	return errors.NewConcurrentModificationError("incident was changed by someone else").
		WithDetails(map[string]interface{}{
			"current_status":  current.Status.String(),
			"current_version": current.Version,
		})
}

func reason(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return string(appErr.Type)
	}
	return "unknown"
}
