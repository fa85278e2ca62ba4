package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records callbus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEmission records one Emit call and how many callbacks it invoked.
	RecordEmission(ctx context.Context, eventName, namespace string, invoked int, duration time.Duration)

	// RecordExecution records a callback execution with its duration and error status.
	RecordExecution(ctx context.Context, eventName string, async bool, duration time.Duration, err error)

	// RecordRecorderFailure records a failed persistence call.
	RecordRecorderFailure(ctx context.Context, op string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	emitted          metric.Int64Counter
	executions       metric.Int64Counter
	executionErrors  metric.Int64Counter
	executionLatency metric.Float64Histogram
	recorderFailures metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("callbus")

	emitted, err := meter.Int64Counter("callbus.events.emitted",
		metric.WithDescription("Number of emitted events"),
	)
	if err != nil {
		return nil, err
	}

	executions, err := meter.Int64Counter("callbus.callback.executions",
		metric.WithDescription("Number of callback executions"),
	)
	if err != nil {
		return nil, err
	}

	executionErrors, err := meter.Int64Counter("callbus.callback.errors",
		metric.WithDescription("Number of failed callback executions"),
	)
	if err != nil {
		return nil, err
	}

	executionLatency, err := meter.Float64Histogram("callbus.callback.latency_ms",
		metric.WithDescription("Callback execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	recorderFailures, err := meter.Int64Counter("callbus.recorder.failures",
		metric.WithDescription("Number of failed recorder calls"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		emitted:          emitted,
		executions:       executions,
		executionErrors:  executionErrors,
		executionLatency: executionLatency,
		recorderFailures: recorderFailures,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEmission records an emission.
func (m *otelMetrics) RecordEmission(ctx context.Context, eventName, namespace string, invoked int, _ time.Duration) {
	m.emitted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.String("namespace", namespace),
		attribute.Bool("delivered", invoked > 0),
	))
}

// RecordExecution records a callback execution.
func (m *otelMetrics) RecordExecution(ctx context.Context, eventName string, async bool, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event", eventName),
		attribute.Bool("async", async),
	)

	m.executions.Add(ctx, 1, attrs)
	m.executionLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)

	if err != nil {
		m.executionErrors.Add(ctx, 1, attrs)
	}
}

// RecordRecorderFailure records a failed recorder call.
func (m *otelMetrics) RecordRecorderFailure(ctx context.Context, op string) {
	m.recorderFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}
