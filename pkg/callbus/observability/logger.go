// Package observability provides structured logging, metrics, and tracing
// for callbus.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds emission context to a logger.
// Returns a new logger with event, event_id, and namespace fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "order.created", "0b7c...", "billing")
//	enriched.Info("dispatching") // includes event, event_id, namespace
func EnrichLogger(logger *slog.Logger, eventName, eventID, namespace string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event", eventName),
		slog.String("event_id", eventID),
		slog.String("namespace", namespace),
	)
}

// LogSubscription logs a new registration.
func LogSubscription(logger *slog.Logger, subID, eventName, namespace, priority string, once bool) {
	if logger == nil {
		return
	}
	logger.Debug("callback registered",
		slog.String("subscription_id", subID),
		slog.String("event", eventName),
		slog.String("namespace", namespace),
		slog.String("priority", priority),
		slog.Bool("once", once),
	)
}

// LogUnregister logs how many subscriptions a removal affected.
func LogUnregister(logger *slog.Logger, eventName, namespace string, removed int) {
	if logger == nil {
		return
	}
	logger.Debug("callbacks unregistered",
		slog.String("event", eventName),
		slog.String("namespace", namespace),
		slog.Int("removed", removed),
	)
}

// LogEmit logs the outcome of an emission.
func LogEmit(logger *slog.Logger, eventName string, invoked, failed int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event emitted",
		slog.String("event", eventName),
		slog.Int("invoked", invoked),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogCallbackError logs a failed callback. The failure is also returned to
// the emitter as a result entry.
func LogCallbackError(logger *slog.Logger, eventName, subID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("callback failed",
		slog.String("event", eventName),
		slog.String("subscription_id", subID),
		slog.String("error", err.Error()),
	)
}

// LogRecorderError logs a persistence failure (non-fatal).
func LogRecorderError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("recorder failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
