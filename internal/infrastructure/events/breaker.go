package events

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/service/audit"
)

// ErrSinkOpen is returned while the breaker is skipping a failing sink.
var ErrSinkOpen = errors.New("audit sink circuit open")

const (
	breakerClosed int32 = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerSink stops calling a sink after threshold consecutive failures. After cooldown a
// single probe is let through; its outcome closes or reopens the circuit.
type BreakerSink struct {
	inner     audit.Sink
	threshold int64
	cooldown  time.Duration
	logger    *zap.Logger
	now       func() time.Time

	state    atomic.Int32
	failures atomic.Int64
	openedAt atomic.Int64
	probing  atomic.Bool
}

func NewBreakerSink(inner audit.Sink, threshold int, cooldown time.Duration, logger *zap.Logger) *BreakerSink {
	if threshold < 1 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreakerSink{
		inner:     inner,
		threshold: int64(threshold),
		cooldown:  cooldown,
		logger:    logger.Named("sink_breaker"),
		now:       time.Now,
	}
}

func (b *BreakerSink) Name() string { return b.inner.Name() }

func (b *BreakerSink) Record(ctx context.Context, e audit.Entry) error {
	if !b.allow() {
		return ErrSinkOpen
	}
	if err := b.inner.Record(ctx, e); err != nil {
		b.fail()
		return err
	}
	b.succeed()
	return nil
}

func (b *BreakerSink) allow() bool {
	switch b.state.Load() {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.now().UnixNano()-b.openedAt.Load() < int64(b.cooldown) {
			return false
		}
		if !b.state.CompareAndSwap(breakerOpen, breakerHalfOpen) {
			return false
		}
		b.probing.Store(true)
		return true
	default:
		return b.probing.CompareAndSwap(false, true)
	}
}

func (b *BreakerSink) fail() {
	if b.state.Load() == breakerHalfOpen || b.failures.Add(1) >= b.threshold {
		b.openedAt.Store(b.now().UnixNano())
		if b.state.Swap(breakerOpen) != breakerOpen {
			b.logger.Warn("audit sink circuit opened",
				zap.String("sink", b.inner.Name()),
				zap.Duration("cooldown", b.cooldown))
		}
		b.probing.Store(false)
	}
}

func (b *BreakerSink) succeed() {
	b.failures.Store(0)
	b.probing.Store(false)
	if b.state.Swap(breakerClosed) != breakerClosed {
		b.logger.Info("audit sink circuit closed", zap.String("sink", b.inner.Name()))
	}
}
