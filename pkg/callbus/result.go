package callbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State tags the outcome held by a Result.
type State int

// Result states.
const (
	StateValue State = iota
	StateFailed
	StatePending
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateValue:
		return "value"
	case StateFailed:
		return "failed"
	case StatePending:
		return "pending"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Result is the outcome of one callback invocation within an emission.
type Result struct {
	// Index is the position of the invocation within the emission.
	Index int

	SubscriptionID string
	State          State

	// Value is set for StateValue.
	Value any

	// Err is set for StateFailed. Callback failures are *CallbackError.
	Err error

	// CompletedAt is zero while pending.
	CompletedAt time.Time

	// Pending is set for StatePending.
	Pending *Pending
}

// OK reports whether the callback returned a value.
func (r Result) OK() bool { return r.State == StateValue }

// Failed reports whether the callback failed.
func (r Result) Failed() bool { return r.State == StateFailed }

// IsPending reports whether the callback is still running on the worker pool.
func (r Result) IsPending() bool { return r.State == StatePending }

func settled(index int, subID string, value any, err error) Result {
	r := Result{
		Index:          index,
		SubscriptionID: subID,
		CompletedAt:    time.Now(),
	}
	if err != nil {
		r.State = StateFailed
		r.Err = err
	} else {
		r.State = StateValue
		r.Value = value
	}
	return r
}

// Pending is the handle for an async callback that has not been joined.
type Pending struct {
	once        sync.Once
	done        chan struct{}
	value       any
	err         error
	completedAt time.Time
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(value any, err error) {
	p.once.Do(func() {
		p.value = value
		p.err = err
		p.completedAt = time.Now()
		close(p.done)
	})
}

// Done is closed once the callback finishes.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Resolved reports whether the callback has finished.
func (p *Pending) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the callback finishes or ctx ends. When ctx ends first
// the returned error wraps both ErrWaitAborted and ctx.Err().
func (p *Pending) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		// both cases may be ready; a finished callback wins
		if p.Resolved() {
			return p.value, p.err
		}
		return nil, fmt.Errorf("%w: %w", ErrWaitAborted, ctx.Err())
	}
}

// settle converts a pending Result into its final form, waiting up to ctx.
func (r Result) settle(ctx context.Context) Result {
	if r.State != StatePending || r.Pending == nil {
		return r
	}
	value, err := r.Pending.Wait(ctx)
	out := settled(r.Index, r.SubscriptionID, value, err)
	if r.Pending.Resolved() {
		out.CompletedAt = r.Pending.completedAt
	}
	return out
}

// Completion is one entry yielded by StreamAsCompleted.
type Completion struct {
	Index          int
	SubscriptionID string
	Value          any
	Err            error
	CompletedAt    time.Time
}

func (r Result) completion() Completion {
	return Completion{
		Index:          r.Index,
		SubscriptionID: r.SubscriptionID,
		Value:          r.Value,
		Err:            r.Err,
		CompletedAt:    r.CompletedAt,
	}
}

// WaitForAll waits for every pending entry and returns a new slice in the
// original order with no pending entries left. If ctx ends first, entries
// still running become failures wrapping ErrWaitAborted.
func WaitForAll(ctx context.Context, results []Result) []Result {
	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = r.settle(ctx)
	}
	return out
}

// StreamAsCompleted yields settled entries first in index order, then
// pending entries as they finish. The channel closes after the last entry.
// If ctx ends, the remaining entries are yielded as failures wrapping
// ErrWaitAborted.
func StreamAsCompleted(ctx context.Context, results []Result) <-chan Completion {
	out := make(chan Completion, len(results))

	var wg sync.WaitGroup
	for _, r := range results {
		if r.State != StatePending || r.Pending == nil {
			out <- r.completion()
		}
	}
	for _, r := range results {
		if r.State == StatePending && r.Pending != nil {
			wg.Add(1)
			go func(r Result) {
				defer wg.Done()
				out <- r.settle(ctx).completion()
			}(r)
		}
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
