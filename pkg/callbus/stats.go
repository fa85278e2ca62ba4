package callbus

import (
	"cmp"
	"slices"
)

// Stats is a snapshot of bus state and lifetime counters.
type Stats struct {
	Subscriptions          int
	EventSubscriptions     int
	NamespaceSubscriptions int
	GlobalSubscriptions    int
	Namespaces             []string

	EventsEmitted    int64
	Executions       int64
	FailedExecutions int64
	AsyncExecutions  int64
	SkippedByFilter  int64

	// QueueDepth is the number of async callbacks waiting for a worker.
	QueueDepth int
}

// Stats returns current subscription counts and lifetime counters.
func (b *Bus) Stats() Stats {
	events, namespaced, globals, namespaces := b.registry.counts()
	if namespaces == nil {
		namespaces = []string{}
	}
	return Stats{
		Subscriptions:          events + namespaced + globals,
		EventSubscriptions:     events,
		NamespaceSubscriptions: namespaced,
		GlobalSubscriptions:    globals,
		Namespaces:             namespaces,
		EventsEmitted:          b.emitted.Load(),
		Executions:             b.executions.Load(),
		FailedExecutions:       b.failed.Load(),
		AsyncExecutions:        b.async.Load(),
		SkippedByFilter:        b.skipped.Load(),
		QueueDepth:             b.bridge.depth(),
	}
}

// Subscription returns the current view of one subscription.
func (b *Bus) Subscription(id string) (SubscriptionInfo, bool) {
	sub, ok := b.registry.get(id)
	if !ok {
		return SubscriptionInfo{}, false
	}
	return sub.info(), true
}

// Subscriptions lists every live subscription ordered by namespace, event,
// priority, and registration order. Global listeners come first.
func (b *Bus) Subscriptions() []SubscriptionInfo {
	subs := b.registry.all()
	slices.SortFunc(subs, func(x, y *subscription) int {
		if x.global != y.global {
			if x.global {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(x.namespace, y.namespace); c != 0 {
			return c
		}
		if c := cmp.Compare(x.event, y.event); c != 0 {
			return c
		}
		return compareSubs(x, y)
	})

	out := make([]SubscriptionInfo, len(subs))
	for i, sub := range subs {
		out[i] = sub.info()
	}
	return out
}
