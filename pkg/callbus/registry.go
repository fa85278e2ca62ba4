package callbus

import (
	"cmp"
	"slices"
	"sort"
	"sync"
)

// Selector picks subscriptions for Unregister.
//
//   - ID set: remove that subscription if it also matches Event and Namespace when given.
//   - Event set: remove every subscription of the event in Namespace (empty = default scope).
//   - Only Namespace set: remove the whole namespace.
//
// An empty Selector removes nothing.
type Selector struct {
	Event     string
	ID        string
	Namespace string
}

// registry stores subscriptions in priority-sorted lists.
type registry struct {
	mu         sync.RWMutex
	events     map[string][]*subscription            // event -> default-scope subscriptions
	namespaces map[string]map[string][]*subscription // namespace -> event -> subscriptions
	globals    []*subscription
	byID       map[string]*subscription
	nextSeq    uint64
}

func newRegistry() *registry {
	return &registry{
		events:     make(map[string][]*subscription),
		namespaces: make(map[string]map[string][]*subscription),
		byID:       make(map[string]*subscription),
	}
}

// insertSorted places sub after every entry of equal or lower priority value.
func insertSorted(list []*subscription, sub *subscription) []*subscription {
	i := sort.Search(len(list), func(i int) bool {
		return list[i].priority > sub.priority
	})
	return slices.Insert(list, i, sub)
}

func compareSubs(a, b *subscription) int {
	if c := cmp.Compare(a.priority, b.priority); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

func (r *registry) add(sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	sub.seq = r.nextSeq
	r.byID[sub.id] = sub

	switch {
	case sub.global:
		r.globals = insertSorted(r.globals, sub)
	case sub.namespace != "":
		events, ok := r.namespaces[sub.namespace]
		if !ok {
			events = make(map[string][]*subscription)
			r.namespaces[sub.namespace] = events
		}
		events[sub.event] = insertSorted(events[sub.event], sub)
	default:
		r.events[sub.event] = insertSorted(r.events[sub.event], sub)
	}
}

// snapshot returns the candidates for one emission in dispatch order.
func (r *registry) snapshot(event, namespace string) []*subscription {
	r.mu.RLock()
	scoped := r.events[event]
	var nsScoped []*subscription
	if namespace != "" {
		nsScoped = r.namespaces[namespace][event]
	}
	out := make([]*subscription, 0, len(r.globals)+len(scoped)+len(nsScoped))
	out = append(out, r.globals...)
	out = append(out, scoped...)
	out = append(out, nsScoped...)
	r.mu.RUnlock()

	slices.SortStableFunc(out, compareSubs)
	return out
}

func (r *registry) get(id string) (*subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.byID[id]
	return sub, ok
}

func (r *registry) all() []*subscription {
	r.mu.RLock()
	out := make([]*subscription, 0, len(r.byID))
	for _, sub := range r.byID {
		out = append(out, sub)
	}
	r.mu.RUnlock()
	return out
}

// remove deletes the given subscriptions, skipping any already gone.
func (r *registry) remove(subs []*subscription) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, sub := range subs {
		if r.removeLocked(sub) {
			removed++
		}
	}
	return removed
}

func (r *registry) removeLocked(sub *subscription) bool {
	if cur, ok := r.byID[sub.id]; !ok || cur != sub {
		return false
	}
	delete(r.byID, sub.id)

	switch {
	case sub.global:
		r.globals = without(r.globals, sub)
	case sub.namespace != "":
		events := r.namespaces[sub.namespace]
		if list := without(events[sub.event], sub); len(list) > 0 {
			events[sub.event] = list
		} else {
			delete(events, sub.event)
		}
		if len(events) == 0 {
			delete(r.namespaces, sub.namespace)
		}
	default:
		if list := without(r.events[sub.event], sub); len(list) > 0 {
			r.events[sub.event] = list
		} else {
			delete(r.events, sub.event)
		}
	}
	return true
}

// without returns list minus sub. The result never aliases list, so
// snapshots taken earlier stay intact.
func without(list []*subscription, sub *subscription) []*subscription {
	out := make([]*subscription, 0, len(list))
	for _, s := range list {
		if s != sub {
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) unregister(sel Selector) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case sel.ID != "":
		sub, ok := r.byID[sel.ID]
		if !ok {
			return 0
		}
		if sel.Event != "" && sub.event != sel.Event {
			return 0
		}
		if sel.Namespace != "" && sub.namespace != sel.Namespace {
			return 0
		}
		if r.removeLocked(sub) {
			return 1
		}
		return 0

	case sel.Event != "":
		var list []*subscription
		if sel.Namespace != "" {
			list = r.namespaces[sel.Namespace][sel.Event]
		} else {
			list = r.events[sel.Event]
		}
		removed := 0
		for _, sub := range slices.Clone(list) {
			if r.removeLocked(sub) {
				removed++
			}
		}
		return removed

	case sel.Namespace != "":
		removed := 0
		for _, list := range r.namespaces[sel.Namespace] {
			for _, sub := range slices.Clone(list) {
				if r.removeLocked(sub) {
					removed++
				}
			}
		}
		delete(r.namespaces, sel.Namespace)
		return removed
	}
	return 0
}

// counts reports subscription totals per scope and the sorted namespace names.
func (r *registry) counts() (events, namespaced, globals int, namespaces []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, list := range r.events {
		events += len(list)
	}
	for ns, byEvent := range r.namespaces {
		namespaces = append(namespaces, ns)
		for _, list := range byEvent {
			namespaced += len(list)
		}
	}
	slices.Sort(namespaces)
	return events, namespaced, len(r.globals), namespaces
}
