package callbus_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/callbus/pkg/callbus"
	"github.com/randalmurphal/callbus/pkg/callbus/observability"
)

// lockedBuffer is a bytes.Buffer safe for use from worker goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) records(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogging(t *testing.T) {
	buf := &lockedBuffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	bus := newBus(t, callbus.WithLogger(logger), callbus.WithRecorder(&fakeRecorder{fail: true}))

	id, err := bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return nil, errors.New("broken")
	}), callbus.InNamespace("ns"))
	require.NoError(t, err)

	_, err = bus.Emit(context.Background(), "evt", callbus.WithNamespace("ns"))
	require.NoError(t, err)
	bus.Unregister(callbus.Selector{ID: id})

	byMsg := map[string][]map[string]any{}
	for _, r := range buf.records(t) {
		msg := r["msg"].(string)
		byMsg[msg] = append(byMsg[msg], r)
	}

	require.NotEmpty(t, byMsg["callback registered"])
	assert.Equal(t, id, byMsg["callback registered"][0]["subscription_id"])

	require.NotEmpty(t, byMsg["callback failed"])
	failed := byMsg["callback failed"][0]
	assert.Equal(t, "WARN", failed["level"])
	assert.Equal(t, "ns", failed["namespace"])
	assert.Contains(t, failed["error"], "broken")

	// registration, emission, start; completion is skipped without an execution id
	assert.Len(t, byMsg["recorder failed"], 3)
	assert.Len(t, byMsg["event emitted"], 1)
	assert.Len(t, byMsg["callbacks unregistered"], 1)
}

type emission struct {
	event   string
	invoked int
}

type execution struct {
	event string
	async bool
	err   bool
}

// fakeMetrics captures metric calls.
type fakeMetrics struct {
	mu         sync.Mutex
	emissions  []emission
	executions []execution
	failures   []string
}

func (m *fakeMetrics) RecordEmission(_ context.Context, eventName, _ string, invoked int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emissions = append(m.emissions, emission{eventName, invoked})
}

func (m *fakeMetrics) RecordExecution(_ context.Context, eventName string, async bool, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = append(m.executions, execution{eventName, async, err != nil})
}

func (m *fakeMetrics) RecordRecorderFailure(_ context.Context, op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, op)
}

func TestMetrics(t *testing.T) {
	m := &fakeMetrics{}
	bus := newBus(t, callbus.WithMetrics(m), callbus.WithRecorder(&fakeRecorder{fail: true}))

	_, err := bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	_, err = bus.Register("evt", callbus.Async(func(context.Context, *callbus.Event) (any, error) {
		return nil, errors.New("x")
	}))
	require.NoError(t, err)

	results, err := bus.Emit(context.Background(), "evt")
	require.NoError(t, err)
	callbus.WaitForAll(context.Background(), results)
	require.NoError(t, bus.Close(context.Background()))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, []emission{{"evt", 2}}, m.emissions)
	assert.ElementsMatch(t, []execution{{"evt", false, false}, {"evt", true, true}}, m.executions)
	assert.Equal(t, []string{
		"subscription_registered",
		"subscription_registered",
		"event_emitted",
		"execution_started",
		"execution_started",
	}, m.failures)
}

// sdkSpans adapts a dedicated SDK tracer to observability.SpanManager.
type sdkSpans struct {
	tracer trace.Tracer
}

func (s sdkSpans) StartEmitSpan(ctx context.Context, eventName, eventID, namespace string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "callbus.emit", trace.WithAttributes(
		attribute.String("callbus.event", eventName),
		attribute.String("callbus.event_id", eventID),
		attribute.String("callbus.namespace", namespace),
	))
}

func (s sdkSpans) StartCallbackSpan(ctx context.Context, subID string, async bool) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "callbus.callback", trace.WithAttributes(
		attribute.String("callbus.subscription_id", subID),
		attribute.Bool("callbus.async", async),
	))
}

func (s sdkSpans) EndSpanWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var _ observability.SpanManager = sdkSpans{}

func TestTracing(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	bus := newBus(t, callbus.WithSpanManager(sdkSpans{tracer: tp.Tracer("test")}))
	_, err := bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return nil, errors.New("x")
	}))
	require.NoError(t, err)
	_, err = bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return nil, nil
	}))
	require.NoError(t, err)

	_, err = bus.Emit(context.Background(), "evt")
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	emit := spans[2]
	assert.Equal(t, "callbus.emit", emit.Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, codes.Unset, spans[1].Status.Code)
	for _, s := range spans[:2] {
		assert.Equal(t, "callbus.callback", s.Name)
		assert.Equal(t, emit.SpanContext.SpanID(), s.Parent.SpanID())
	}
}
