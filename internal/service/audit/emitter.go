package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/metrics"
)

// Entry is one row of the tenant-wide audit log. It mirrors a timeline event.
type Entry struct {
	EventID    uuid.UUID          `json:"event_id"`
	TenantID   uuid.UUID          `json:"tenant_id"`
	IncidentID uuid.UUID          `json:"incident_id"`
	Kind       incident.EventKind `json:"kind"`
	ActorID    uuid.UUID          `json:"actor_id"`
	ActorRole  string             `json:"actor_role"`
	Payload    json.RawMessage    `json:"payload"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// EntryFromEvent converts a committed timeline event.
func EntryFromEvent(ev incident.Event) (Entry, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s payload: %w", ev.Kind, err)
	}
	return Entry{
		EventID:    ev.ID,
		TenantID:   ev.TenantID,
		IncidentID: ev.IncidentID,
		Kind:       ev.Kind,
		ActorID:    ev.ActorID,
		ActorRole:  ev.ActorRole,
		Payload:    payload,
		OccurredAt: ev.CreatedAt,
	}, nil
}

// Sink records audit entries somewhere durable.
type Sink interface {
	Name() string
	Record(ctx context.Context, entry Entry) error
}

type Config struct {
	BufferSize   int
	Workers      int
	WriteTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{BufferSize: 1024, Workers: 2, WriteTimeout: 5 * time.Second}
}

// Emitter fans committed events out to the audit sinks in the background. A sink failure is
// logged and counted; it never affects the incident change that produced the event.
type Emitter struct {
	sinks   []Sink
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	wg     sync.WaitGroup
}

func NewEmitter(cfg Config, logger *zap.Logger, m *metrics.Registry, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	e := &Emitter{
		sinks:   sinks,
		cfg:     cfg,
		logger:  logger.Named("audit"),
		metrics: m,
		queue:   make(chan Entry, cfg.BufferSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e
}

// Emit queues ev for every sink. When the buffer is full or the emitter is closed the entry
// is written synchronously instead of being dropped.
func (e *Emitter) Emit(ctx context.Context, ev incident.Event) {
	entry, err := EntryFromEvent(ev)
	if err != nil {
		e.logger.Error("audit entry not encodable", zap.String("event_id", ev.ID.String()), zap.Error(err))
		return
	}

	e.mu.RLock()
	if !e.closed {
		select {
		case e.queue <- entry:
			e.mu.RUnlock()
			return
		default:
		}
	}
	e.mu.RUnlock()

	e.logger.Debug("audit buffer unavailable, writing synchronously", zap.String("event_id", entry.EventID.String()))
	e.write(context.WithoutCancel(ctx), entry)
}

// Close stops accepting queued entries and waits for the workers to drain the buffer.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.logger.Warn("audit emitter shutdown timed out", zap.Int("pending_entries", len(e.queue)))
		return ctx.Err()
	}
}

func (e *Emitter) worker() {
	defer e.wg.Done()
	for entry := range e.queue {
		e.write(context.Background(), entry)
	}
}

func (e *Emitter) write(ctx context.Context, entry Entry) {
	for _, sink := range e.sinks {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.WriteTimeout)
		err := sink.Record(sctx, entry)
		cancel()
		if err != nil {
			e.metrics.AuditSinkFailure(sink.Name())
			e.logger.Error("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("event_id", entry.EventID.String()),
				zap.String("incident_id", entry.IncidentID.String()),
				zap.String("kind", string(entry.Kind)),
				zap.Error(err),
			)
		}
	}
}

// LogSink writes entries to a structured logger. Useful as a last-resort trail alongside the
// durable sinks.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit_trail")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Record(_ context.Context, entry Entry) error {
	s.logger.Info("audit",
		zap.String("event_id", entry.EventID.String()),
		zap.String("tenant_id", entry.TenantID.String()),
		zap.String("incident_id", entry.IncidentID.String()),
		zap.String("kind", string(entry.Kind)),
		zap.String("actor_id", entry.ActorID.String()),
		zap.String("actor_role", entry.ActorRole),
		zap.ByteString("payload", entry.Payload),
		zap.Time("occurred_at", entry.OccurredAt),
	)
	return nil
}
