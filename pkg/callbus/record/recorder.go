package record

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/callbus/pkg/callbus"
	"github.com/randalmurphal/callbus/pkg/callbus/observability"
)

// ErrRecorderClosed indicates the Recorder no longer accepts writes.
var ErrRecorderClosed = errors.New("recorder closed")

// Store write operations, as passed to OnDrop.
const (
	OpSaveTask          = "save_task"
	OpSaveEvent         = "save_event"
	OpStartExecution    = "start_execution"
	OpCompleteExecution = "complete_execution"
)

// Recorder adapts a Store to callbus.Recorder. IDs are assigned up front
// and writes are applied in order by a single background goroutine, so the
// dispatch path never waits on the Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
	onDrop func(op string)

	queue chan write
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

type write struct {
	op    string
	apply func(ctx context.Context) error
	flush chan struct{}
}

var _ callbus.Recorder = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBuffer sets how many writes may be queued before new ones are dropped.
// Default: 1024
func WithBuffer(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan write, n)
		}
	}
}

// WithLogger logs dropped and failed writes.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

// WithOnDrop is called when a write is dropped because the buffer is full.
func WithOnDrop(fn func(op string)) RecorderOption {
	return func(r *Recorder) { r.onDrop = fn }
}

// NewRecorder starts a Recorder writing to store. The caller still owns
// store and closes it after Close returns.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan write, 1024),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	ctx := context.Background()
	for w := range r.queue {
		if w.flush != nil {
			close(w.flush)
			continue
		}
		if err := w.apply(ctx); err != nil {
			observability.LogRecorderError(r.logger, w.op, err)
		}
	}
}

// enqueue never blocks. A full buffer drops the write.
func (r *Recorder) enqueue(op string, apply func(ctx context.Context) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	select {
	case r.queue <- write{op: op, apply: apply}:
	default:
		if r.logger != nil {
			r.logger.Warn("recorder buffer full, write dropped", slog.String("operation", op))
		}
		if r.onDrop != nil {
			r.onDrop(op)
		}
	}
	return nil
}

// SubscriptionRegistered implements callbus.Recorder.
func (r *Recorder) SubscriptionRegistered(_ context.Context, reg callbus.Registration) (string, error) {
	task := Task{
		ID:             uuid.NewString(),
		SubscriptionID: reg.SubscriptionID,
		EventName:      reg.EventName,
		Namespace:      reg.Namespace,
		Priority:       reg.Priority,
		Once:           reg.Once,
		Async:          reg.Async,
		Global:         reg.Global,
		Filters:        reg.Filters,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	err := r.enqueue(OpSaveTask, func(ctx context.Context) error {
		return r.store.SaveTask(ctx, task)
	})
	if err != nil {
		return "", err
	}
	return task.ID, nil
}

// EventEmitted implements callbus.Recorder.
func (r *Recorder) EventEmitted(_ context.Context, evt *callbus.Event) (string, error) {
	rec := EventRecord{
		ID:        uuid.NewString(),
		Name:      evt.Name,
		Source:    evt.Source,
		Namespace: evt.Namespace,
		SessionID: evt.SessionID,
		UserID:    evt.UserID,
		Data:      evt.Data,
		Metadata:  evt.Metadata,
		CreatedAt: evt.Timestamp,
	}
	err := r.enqueue(OpSaveEvent, func(ctx context.Context) error {
		return r.store.SaveEvent(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ExecutionStarted implements callbus.Recorder.
func (r *Recorder) ExecutionStarted(_ context.Context, taskID, eventID string, evt *callbus.Event) (string, error) {
	exec := Execution{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		EventID:   eventID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	if evt != nil {
		exec.Context = evt.Snapshot()
	}
	err := r.enqueue(OpStartExecution, func(ctx context.Context) error {
		return r.store.StartExecution(ctx, exec)
	})
	if err != nil {
		return "", err
	}
	return exec.ID, nil
}

// ExecutionCompleted implements callbus.Recorder.
func (r *Recorder) ExecutionCompleted(_ context.Context, executionID string, result any, errMsg string) error {
	at := time.Now()
	return r.enqueue(OpCompleteExecution, func(ctx context.Context) error {
		return r.store.CompleteExecution(ctx, executionID, result, errMsg, at)
	})
}

// Flush waits until every write queued before the call has been applied.
func (r *Recorder) Flush(ctx context.Context) error {
	marker := make(chan struct{})

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrRecorderClosed
	}
	select {
	case r.queue <- write{flush: marker}:
		r.mu.RUnlock()
	case <-ctx.Done():
		r.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting writes and waits for queued ones to be applied.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
