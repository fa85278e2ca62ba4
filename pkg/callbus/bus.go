package callbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/randalmurphal/callbus/pkg/callbus/observability"
)

// Bus dispatches events to registered callbacks.
// All methods are safe for concurrent use, including from inside callbacks.
type Bus struct {
	registry *registry
	bridge   *bridge
	recorder Recorder
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager

	closed atomic.Bool

	emitted    atomic.Int64
	executions atomic.Int64
	failed     atomic.Int64
	async      atomic.Int64
	skipped    atomic.Int64
}

// New creates a Bus and starts its worker pool.
func New(opts ...Option) *Bus {
	cfg := defaultBusConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Bus{
		registry: newRegistry(),
		bridge:   newBridge(cfg.workers, cfg.queueSize),
		recorder: cfg.recorder,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		spans:    cfg.spans,
	}
}

// Close stops accepting registrations and emissions, then waits for queued
// async callbacks to finish or ctx to end. Calling Close again is a no-op
// apart from waiting.
func (b *Bus) Close(ctx context.Context) error {
	b.closed.Store(true)
	return b.bridge.close(ctx)
}

// Register subscribes cb to event and returns the subscription id.
func (b *Bus) Register(event string, cb Callback, opts ...SubscribeOption) (string, error) {
	if event == "" {
		return "", ErrEmptyEventName
	}
	return b.subscribe(event, false, cb, opts)
}

// RegisterGlobal subscribes cb to every event in every namespace.
// InNamespace is ignored.
func (b *Bus) RegisterGlobal(cb Callback, opts ...SubscribeOption) (string, error) {
	return b.subscribe("", true, cb, opts)
}

func (b *Bus) subscribe(event string, global bool, cb Callback, opts []SubscribeOption) (string, error) {
	if !cb.valid() {
		return "", ErrNilCallback
	}
	if b.closed.Load() {
		return "", ErrBusClosed
	}

	cfg := subscribeConfig{priority: Normal}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.priority.Valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidPriority, int(cfg.priority))
	}
	if global {
		cfg.namespace = ""
	}

	sub := &subscription{
		id:        uuid.NewString(),
		event:     event,
		namespace: cfg.namespace,
		priority:  cfg.priority,
		once:      cfg.once,
		global:    global,
		filters:   cfg.filters,
		cb:        cb,
	}

	ctx := context.Background()
	b.guardRecorder(ctx, b.logger, opSubscriptionRegistered, func() (err error) {
		sub.taskID, err = b.recorder.SubscriptionRegistered(ctx, sub.registration())
		return err
	})

	b.registry.add(sub)
	observability.LogSubscription(b.logger, sub.id, event, sub.namespace, sub.priority.String(), sub.once)
	return sub.id, nil
}

// Unregister removes the subscriptions picked by sel and returns how many
// were removed.
func (b *Bus) Unregister(sel Selector) int {
	removed := b.registry.unregister(sel)
	observability.LogUnregister(b.logger, sel.Event, sel.Namespace, removed)
	return removed
}

// Namespace returns a view of the bus bound to name.
func (b *Bus) Namespace(name string) *Namespace {
	return &Namespace{bus: b, name: name}
}

// guardRecorder runs one Recorder call, logging and counting failures and
// recovering panics.
func (b *Bus) guardRecorder(ctx context.Context, logger *slog.Logger, op string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	observability.LogRecorderError(logger, op, &RecorderError{Op: op, Err: err})
	b.metrics.RecordRecorderFailure(ctx, op)
}
