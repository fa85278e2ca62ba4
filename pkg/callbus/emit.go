package callbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/randalmurphal/callbus/pkg/callbus/observability"
)

// Emit dispatches an event to every matching subscription and returns one
// Result per invoked callback, in invocation order.
//
// Candidates are global listeners, default-scope subscriptions of name, and
// subscriptions of name in the emission namespace, ordered by priority and
// then registration order. Subscriptions whose filters do not match are
// skipped. Callback failures appear as failed Results; the returned error
// is only ever ErrEmptyEventName or ErrBusClosed.
func (b *Bus) Emit(ctx context.Context, name string, opts ...EmitOption) ([]Result, error) {
	if name == "" {
		return nil, ErrEmptyEventName
	}
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	return b.dispatch(ctx, newEvent(name, opts)), nil
}

func (b *Bus) dispatch(ctx context.Context, evt *Event) []Result {
	elapsed := observability.TimedOperation()
	start := time.Now()

	ctx, span := b.spans.StartEmitSpan(ctx, evt.Name, evt.ID, evt.Namespace)
	logger := observability.EnrichLogger(b.logger, evt.Name, evt.ID, evt.Namespace)
	b.emitted.Add(1)

	var eventID string
	b.guardRecorder(ctx, logger, opEventEmitted, func() (err error) {
		eventID, err = b.recorder.EventEmitted(ctx, evt)
		return err
	})

	candidates := b.registry.snapshot(evt.Name, evt.Namespace)
	results := make([]Result, 0, len(candidates))
	var fired []*subscription
	failed := 0

	for _, sub := range candidates {
		if !sub.matches(evt) {
			b.skipped.Add(1)
			continue
		}
		if !sub.claim() {
			continue
		}
		if sub.once {
			fired = append(fired, sub)
		}

		r := b.invoke(ctx, logger, sub, evt, eventID, len(results))
		if r.Failed() {
			failed++
		}
		results = append(results, r)
	}

	if len(fired) > 0 {
		b.registry.remove(fired)
	}

	b.metrics.RecordEmission(ctx, evt.Name, evt.Namespace, len(results), time.Since(start))
	observability.LogEmit(logger, evt.Name, len(results), failed, elapsed())
	b.spans.EndSpanWithError(span, nil)
	return results
}

// invoke runs one subscription through the bridge.
func (b *Bus) invoke(ctx context.Context, logger *slog.Logger, sub *subscription, evt *Event, eventID string, index int) Result {
	var execID string
	b.guardRecorder(ctx, logger, opExecutionStarted, func() (err error) {
		execID, err = b.recorder.ExecutionStarted(ctx, sub.taskID, eventID, evt)
		return err
	})

	sub.markCalled(time.Now())
	b.executions.Add(1)

	if !sub.cb.async {
		value, err := b.run(ctx, logger, sub, evt)
		b.complete(ctx, logger, execID, value, err)
		return settled(index, sub.id, value, err)
	}

	b.async.Add(1)
	p := newPending()
	// Async callbacks outlive the emitting call; keep ctx values, drop its cancellation.
	actx := context.WithoutCancel(ctx)
	err := b.bridge.submit(func() {
		value, err := b.run(actx, logger, sub, evt)
		p.resolve(value, err)
		b.complete(actx, logger, execID, value, err)
	})
	if err != nil {
		cbErr := &CallbackError{SubscriptionID: sub.id, Event: evt.Name, Err: err}
		b.failed.Add(1)
		observability.LogCallbackError(logger, evt.Name, sub.id, cbErr)
		b.metrics.RecordExecution(ctx, evt.Name, true, 0, cbErr)
		b.complete(ctx, logger, execID, nil, cbErr)
		return settled(index, sub.id, nil, cbErr)
	}

	return Result{
		Index:          index,
		SubscriptionID: sub.id,
		State:          StatePending,
		Pending:        p,
	}
}

// run calls the callback, wrapping any failure in a *CallbackError.
func (b *Bus) run(ctx context.Context, logger *slog.Logger, sub *subscription, evt *Event) (any, error) {
	ctx, span := b.spans.StartCallbackSpan(ctx, sub.id, sub.cb.async)
	start := time.Now()

	value, err := sub.cb.call(ctx, evt)
	if err != nil {
		err = &CallbackError{SubscriptionID: sub.id, Event: evt.Name, Err: err}
		value = nil
		b.failed.Add(1)
		observability.LogCallbackError(logger, evt.Name, sub.id, err)
	}

	b.metrics.RecordExecution(ctx, evt.Name, sub.cb.async, time.Since(start), err)
	b.spans.EndSpanWithError(span, err)
	return value, err
}

func (b *Bus) complete(ctx context.Context, logger *slog.Logger, execID string, value any, err error) {
	if execID == "" {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	b.guardRecorder(ctx, logger, opExecutionCompleted, func() error {
		return b.recorder.ExecutionCompleted(ctx, execID, value, errMsg)
	})
}
