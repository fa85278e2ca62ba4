/*
Package callbus provides a process-local, priority-ordered callback bus.

# Overview

A Bus maps event names to subscriptions. Emitting an event invokes every
matching subscription in priority order and returns one Result per
invocation. Subscriptions may live in the default scope, inside a named
namespace, or be global listeners that fire for every event.

Callbacks come in two explicit variants:
  - Sync callbacks run inline on the emitting goroutine
  - Async callbacks run on the bus worker pool and return a pending Result

# Basic Usage

	bus := callbus.New()
	defer bus.Close(context.Background())

	bus.Register("user.login", callbus.Sync(func(ctx context.Context, evt *callbus.Event) (any, error) {
	    return "welcome " + evt.UserID, nil
	}), callbus.WithPriority(callbus.High))

	results, err := bus.Emit(ctx, "user.login", callbus.WithUser("u-1"))

# Async Results

Async callbacks produce pending results. Join them with WaitForAll or consume
them as they finish with StreamAsCompleted:

	results = callbus.WaitForAll(ctx, results)

	for c := range callbus.StreamAsCompleted(ctx, results) {
	    fmt.Println(c.Index, c.Value, c.Err)
	}

# Filters and One-Shot Subscriptions

	bus.Register("audit", cb, callbus.WithFilter("source", "admin"), callbus.Once())

A filter key resolves against the built-in event fields first (source,
session_id, user_id, namespace, ...) and then against event metadata. A
missing key never matches.

# Namespaces

	billing := bus.Namespace("billing")
	billing.Register("invoice.paid", cb)
	billing.Emit(ctx, "invoice.paid")

Emitting through a namespace also reaches global listeners and default-scope
subscriptions of the same event name.

# Persistence

A Recorder receives registration, emission, and execution lifecycle calls.
Recorder failures are logged and never alter dispatch. The record subpackage
provides memory, SQLite, and bbolt backed implementations.
*/
package callbus
