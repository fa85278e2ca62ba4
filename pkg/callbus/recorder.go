package callbus

import "context"

// Recorder receives lifecycle notifications for persistence.
//
// The bus calls a Recorder synchronously on the dispatch path, so
// implementations should return quickly. Errors and panics are logged and
// never change dispatch results. Returning an empty id is allowed.
type Recorder interface {
	// SubscriptionRegistered is called before a subscription becomes visible.
	SubscriptionRegistered(ctx context.Context, reg Registration) (taskID string, err error)

	// EventEmitted is called once per emission before any callback runs.
	EventEmitted(ctx context.Context, evt *Event) (eventID string, err error)

	// ExecutionStarted is called before each callback invocation.
	ExecutionStarted(ctx context.Context, taskID, eventID string, evt *Event) (executionID string, err error)

	// ExecutionCompleted is called when a callback returns. errMsg is empty on success.
	ExecutionCompleted(ctx context.Context, executionID string, result any, errMsg string) error
}

// Registration describes a new subscription to a Recorder.
type Registration struct {
	SubscriptionID string
	EventName      string
	Namespace      string
	Priority       Priority
	Once           bool
	Async          bool
	Global         bool
	Filters        map[string]any
}

// NoopRecorder discards every notification.
type NoopRecorder struct{}

// SubscriptionRegistered does nothing.
func (NoopRecorder) SubscriptionRegistered(context.Context, Registration) (string, error) {
	return "", nil
}

// EventEmitted does nothing.
func (NoopRecorder) EventEmitted(context.Context, *Event) (string, error) {
	return "", nil
}

// ExecutionStarted does nothing.
func (NoopRecorder) ExecutionStarted(context.Context, string, string, *Event) (string, error) {
	return "", nil
}

// ExecutionCompleted does nothing.
func (NoopRecorder) ExecutionCompleted(context.Context, string, any, string) error {
	return nil
}

// Recorder operation names used in logs and metrics.
const (
	opSubscriptionRegistered = "subscription_registered"
	opEventEmitted           = "event_emitted"
	opExecutionStarted       = "execution_started"
	opExecutionCompleted     = "execution_completed"
)
