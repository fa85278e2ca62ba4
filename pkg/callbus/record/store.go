// Package record persists callback registrations, emitted events, and
// executions, and implements callbus.Recorder on top of a Store.
package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/callbus/pkg/callbus"
	"github.com/randalmurphal/callbus/pkg/callbus/config"
)

// Store persists bus activity.
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveTask stores a registration. Overwrites a task with the same ID.
	SaveTask(ctx context.Context, task Task) error

	// SaveEvent stores an emitted event.
	SaveEvent(ctx context.Context, evt EventRecord) error

	// StartExecution stores a running execution.
	StartExecution(ctx context.Context, exec Execution) error

	// CompleteExecution finishes an execution, bumps its task's execution
	// count, and deactivates the task if it was registered as once.
	// Returns ErrNotFound if the execution doesn't exist.
	CompleteExecution(ctx context.Context, id string, result any, errMsg string, at time.Time) error

	// ActiveTasks lists active tasks ordered by priority then creation time.
	// Empty eventName or namespace matches any.
	//
	// A task only turns inactive when a once subscription completes. The
	// recorder is not told about Unregister, so removed subscriptions keep
	// showing here. Bus.Subscriptions is the source of truth for live ones.
	ActiveTasks(ctx context.Context, eventName, namespace string) ([]Task, error)

	// History lists executions newest first. Empty eventName matches any.
	// A limit <= 0 means no limit.
	History(ctx context.Context, eventName string, limit int) ([]HistoryEntry, error)

	// Stats aggregates all stored data. Top events and namespaces count only
	// events emitted at or after since.
	Stats(ctx context.Context, since time.Time) (Stats, error)

	// Cleanup removes executions started before the cutoff, then events and
	// inactive tasks created before it that have no executions left.
	Cleanup(ctx context.Context, before time.Time) (CleanupResult, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("record store closed")

	// ErrUnknownDriver indicates Open was given an unsupported driver.
	ErrUnknownDriver = errors.New("unknown store driver")
)

// Status is the state of an execution.
type Status string

// Execution states.
const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is a persisted registration.
type Task struct {
	ID             string           `json:"id"`
	SubscriptionID string           `json:"subscription_id"`
	EventName      string           `json:"event_name"`
	Namespace      string           `json:"namespace,omitempty"`
	Priority       callbus.Priority `json:"priority"`
	Once           bool             `json:"once"`
	Async          bool             `json:"async"`
	Global         bool             `json:"global"`
	Filters        map[string]any   `json:"filters,omitempty"`
	Active         bool             `json:"active"`
	ExecutionCount int64            `json:"execution_count"`
	CreatedAt      time.Time        `json:"created_at"`
	LastExecuted   time.Time        `json:"last_executed,omitzero"`
}

// EventRecord is a persisted emission.
type EventRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Source    string         `json:"source"`
	Namespace string         `json:"namespace,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Data      any            `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Execution is a persisted callback invocation.
type Execution struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"task_id"`
	EventID     string         `json:"event_id"`
	Status      Status         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	DurationMs  float64        `json:"duration_ms"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// HistoryEntry is an execution joined with its event.
type HistoryEntry struct {
	Execution
	EventName string `json:"event_name"`
	Namespace string `json:"namespace,omitempty"`
}

// NameCount is one row of a top-N listing.
type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Stats summarizes stored activity.
type Stats struct {
	TotalEvents          int64       `json:"total_events"`
	TotalExecutions      int64       `json:"total_executions"`
	SuccessfulExecutions int64       `json:"successful_executions"`
	FailedExecutions     int64       `json:"failed_executions"`
	AsyncExecutions      int64       `json:"async_executions"`
	AvgDurationMs        float64     `json:"avg_duration_ms"`
	SuccessRate          float64     `json:"success_rate"`
	ActiveTasks          int64       `json:"active_tasks"`
	TopEvents            []NameCount `json:"top_events"`
	TopNamespaces        []NameCount `json:"top_namespaces"`
	Since                time.Time   `json:"since"`
	GeneratedAt          time.Time   `json:"generated_at"`
}

// CleanupResult counts what Cleanup removed.
type CleanupResult struct {
	Executions int64 `json:"executions"`
	Events     int64 `json:"events"`
	Tasks      int64 `json:"tasks"`
}

// topLimit bounds TopEvents and TopNamespaces.
const topLimit = 10

// Open creates a Store for the given driver ("memory", "sqlite", "bolt").
// An empty driver selects memory.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", config.DriverMemory:
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return NewSQLiteStore(path)
	case config.DriverBolt:
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}

// encodeJSON marshals v, falling back to its fmt.Sprint form for values
// JSON cannot represent.
func encodeJSON(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprint(v))
	}
	return data
}

// decodeJSON is the inverse of encodeJSON.
func decodeJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

func decodeMap(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// normalize gives in-memory values the same shape they have after a
// round trip through a persistent store.
func normalize(v any) any {
	return decodeJSON(encodeJSON(v))
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return decodeMap(encodeJSON(m))
}

func durationMs(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}

func successRate(successful, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(successful) / float64(total) * 100
}
