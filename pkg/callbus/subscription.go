package callbus

import (
	"maps"
	"reflect"
	"sync/atomic"
	"time"
)

// SubscribeOption configures a registration.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	priority  Priority
	once      bool
	filters   map[string]any
	namespace string
}

// WithPriority sets the execution priority. Default: Normal
// Register rejects values outside Critical..Background with ErrInvalidPriority.
func WithPriority(p Priority) SubscribeOption {
	return func(c *subscribeConfig) { c.priority = p }
}

// Once removes the subscription after its first invocation, whether or not
// that invocation failed.
func Once() SubscribeOption {
	return func(c *subscribeConfig) { c.once = true }
}

// WithFilter requires the event field or metadata entry key to equal value.
func WithFilter(key string, value any) SubscribeOption {
	return func(c *subscribeConfig) {
		if c.filters == nil {
			c.filters = make(map[string]any)
		}
		c.filters[key] = value
	}
}

// WithFilters adds every entry of m as a filter. m is copied.
func WithFilters(m map[string]any) SubscribeOption {
	return func(c *subscribeConfig) {
		if len(m) == 0 {
			return
		}
		if c.filters == nil {
			c.filters = make(map[string]any, len(m))
		}
		maps.Copy(c.filters, m)
	}
}

// InNamespace places the subscription in a namespace. Ignored by RegisterGlobal.
func InNamespace(ns string) SubscribeOption {
	return func(c *subscribeConfig) { c.namespace = ns }
}

// subscription is the registry's record of one registration.
type subscription struct {
	id        string
	event     string
	namespace string
	priority  Priority
	once      bool
	global    bool
	filters   map[string]any
	cb        Callback
	taskID    string
	seq       uint64

	fired      atomic.Bool
	calls      atomic.Int64
	lastCalled atomic.Int64 // unix nanos
}

// matches reports whether every filter is satisfied by evt.
func (s *subscription) matches(evt *Event) bool {
	for key, want := range s.filters {
		got, ok := evt.Field(key)
		if !ok || !equalValues(got, want) {
			return false
		}
	}
	return true
}

// claim reserves the single firing of a once subscription.
func (s *subscription) claim() bool {
	if !s.once {
		return true
	}
	return s.fired.CompareAndSwap(false, true)
}

func (s *subscription) markCalled(at time.Time) {
	s.calls.Add(1)
	s.lastCalled.Store(at.UnixNano())
}

func (s *subscription) registration() Registration {
	return Registration{
		SubscriptionID: s.id,
		EventName:      s.event,
		Namespace:      s.namespace,
		Priority:       s.priority,
		Once:           s.once,
		Async:          s.cb.async,
		Global:         s.global,
		Filters:        maps.Clone(s.filters),
	}
}

func (s *subscription) info() SubscriptionInfo {
	info := SubscriptionInfo{
		ID:        s.id,
		EventName: s.event,
		Namespace: s.namespace,
		Priority:  s.priority,
		Once:      s.once,
		Async:     s.cb.async,
		Global:    s.global,
		Filters:   maps.Clone(s.filters),
		TaskID:    s.taskID,
		CallCount: s.calls.Load(),
	}
	if ns := s.lastCalled.Load(); ns != 0 {
		info.LastCalledAt = time.Unix(0, ns)
	}
	return info
}

// SubscriptionInfo is a point-in-time view of a subscription.
type SubscriptionInfo struct {
	ID           string
	EventName    string // Empty for global listeners
	Namespace    string // Empty for the default scope
	Priority     Priority
	Once         bool
	Async        bool
	Global       bool
	Filters      map[string]any
	TaskID       string // Id assigned by the Recorder, if any
	CallCount    int64
	LastCalledAt time.Time
}

// equalValues compares filter values. Values of different dynamic types
// never match.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
