package callbus

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// DefaultSource is used when an emission does not name its source.
const DefaultSource = "unknown"

// Event describes one emission. It is built once by Emit and shared by
// pointer with every callback of that emission; treat it as read-only.
type Event struct {
	ID        string
	Name      string
	Source    string
	Data      any
	SessionID string
	UserID    string
	Namespace string
	Timestamp time.Time
	Metadata  map[string]any
}

// EmitOption configures the Event built by Emit.
type EmitOption func(*Event)

// WithData attaches the event payload.
func WithData(data any) EmitOption {
	return func(e *Event) { e.Data = data }
}

// WithSource sets the origin of the event. Empty keeps the default.
func WithSource(source string) EmitOption {
	return func(e *Event) {
		if source != "" {
			e.Source = source
		}
	}
}

// WithSession sets the session identifier.
func WithSession(id string) EmitOption {
	return func(e *Event) { e.SessionID = id }
}

// WithUser sets the user identifier.
func WithUser(id string) EmitOption {
	return func(e *Event) { e.UserID = id }
}

// WithNamespace emits into a namespace in addition to the default scope.
func WithNamespace(ns string) EmitOption {
	return func(e *Event) { e.Namespace = ns }
}

// WithMetadata sets a single metadata entry.
func WithMetadata(key string, value any) EmitOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithMetadataMap merges m into the event metadata. m is copied.
func WithMetadataMap(m map[string]any) EmitOption {
	return func(e *Event) {
		if len(m) == 0 {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, len(m))
		}
		maps.Copy(e.Metadata, m)
	}
}

func newEvent(name string, opts []EmitOption) *Event {
	evt := &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Source:    DefaultSource,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(evt)
	}
	if evt.Metadata == nil {
		evt.Metadata = map[string]any{}
	}
	return evt
}

// Field resolves a filter key. Built-in fields take precedence over metadata.
func (e *Event) Field(name string) (any, bool) {
	switch name {
	case "event_name", "name":
		return e.Name, true
	case "source":
		return e.Source, true
	case "data":
		return e.Data, true
	case "session_id":
		return e.SessionID, true
	case "user_id":
		return e.UserID, true
	case "namespace":
		return e.Namespace, true
	case "timestamp":
		return e.Timestamp, true
	case "id":
		return e.ID, true
	}
	v, ok := e.Metadata[name]
	return v, ok
}

// Snapshot returns the map form of the event used by recorders.
func (e *Event) Snapshot() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"event_name": e.Name,
		"source":     e.Source,
		"data":       e.Data,
		"session_id": e.SessionID,
		"user_id":    e.UserID,
		"namespace":  e.Namespace,
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
		"metadata":   maps.Clone(e.Metadata),
	}
}
