package callbus

import (
	"context"
	"fmt"
)

// Func is the signature shared by both callback variants.
type Func func(ctx context.Context, evt *Event) (any, error)

// Callback pairs a Func with its execution mode.
//
// Build one with Sync or Async; the zero value is rejected by Register.
type Callback struct {
	fn    Func
	async bool
}

// Sync wraps fn to run inline on the emitting goroutine.
func Sync(fn Func) Callback {
	return Callback{fn: fn}
}

// Async wraps fn to run on the bus worker pool. Emit returns a pending
// Result for it.
func Async(fn Func) Callback {
	return Callback{fn: fn, async: true}
}

// IsAsync reports whether the callback runs on the worker pool.
func (c Callback) IsAsync() bool {
	return c.async
}

func (c Callback) valid() bool {
	return c.fn != nil
}

// call runs the callback, converting a panic into an error.
func (c Callback) call(ctx context.Context, evt *Event) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrCallbackPanic, r)
		}
	}()
	return c.fn(ctx, evt)
}
