package callbus

import "context"

// NamespaceSource is the default source for events emitted through a Namespace.
const NamespaceSource = "namespace"

// Namespace is a Bus view with a fixed namespace.
type Namespace struct {
	bus  *Bus
	name string
}

// Name returns the bound namespace.
func (n *Namespace) Name() string {
	return n.name
}

// Register subscribes cb to event inside the namespace.
func (n *Namespace) Register(event string, cb Callback, opts ...SubscribeOption) (string, error) {
	all := make([]SubscribeOption, 0, len(opts)+1)
	all = append(all, opts...)
	all = append(all, InNamespace(n.name))
	return n.bus.Register(event, cb, all...)
}

// Unregister removes subscriptions inside the namespace. With both event
// and id empty it removes the whole namespace.
func (n *Namespace) Unregister(event, id string) int {
	return n.bus.Unregister(Selector{Event: event, ID: id, Namespace: n.name})
}

// Emit emits event into the namespace. Global listeners and default-scope
// subscriptions of the same event also fire.
func (n *Namespace) Emit(ctx context.Context, event string, opts ...EmitOption) ([]Result, error) {
	all := make([]EmitOption, 0, len(opts)+2)
	all = append(all, WithSource(NamespaceSource))
	all = append(all, opts...)
	all = append(all, WithNamespace(n.name))
	return n.bus.Emit(ctx, event, all...)
}
