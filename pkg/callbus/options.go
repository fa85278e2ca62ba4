package callbus

import (
	"log/slog"
	"runtime"

	"github.com/randalmurphal/callbus/pkg/callbus/config"
	"github.com/randalmurphal/callbus/pkg/callbus/observability"
)

// busConfig holds construction options.
type busConfig struct {
	workers   int
	queueSize int
	recorder  Recorder
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
}

func defaultBusConfig() busConfig {
	return busConfig{
		workers:   runtime.NumCPU(),
		queueSize: 1024,
		recorder:  NoopRecorder{},
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
}

// Option configures a Bus.
type Option func(*busConfig)

// WithWorkers sets the number of goroutines running async callbacks.
// Default: runtime.NumCPU()
func WithWorkers(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithQueueSize bounds the async queue. When it is full, async callbacks
// fail immediately with ErrQueueFull.
// Default: 1024
func WithQueueSize(n int) Option {
	return func(c *busConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// WithRecorder sets the persistence collaborator. Nil restores the no-op recorder.
func WithRecorder(r Recorder) Option {
	return func(c *busConfig) {
		if r == nil {
			r = NoopRecorder{}
		}
		c.recorder = r
	}
}

// WithLogger enables structured logging. Nil disables it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
//
// Example:
//
//	bus := callbus.New(callbus.WithMetrics(observability.NewMetricsRecorder()))
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *busConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpanManager sets the tracer used for emit and callback spans.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *busConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithSettings applies worker, queue, metrics, and tracing settings.
func WithSettings(s config.Settings) Option {
	return func(c *busConfig) {
		WithWorkers(s.Workers)(c)
		WithQueueSize(s.QueueSize)(c)
		if s.Metrics {
			c.metrics = observability.NewMetricsRecorder()
		}
		if s.Tracing {
			c.spans = observability.NewSpanManager()
		}
	}
}
