package callbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/callbus/pkg/callbus"
)

type completion struct {
	execID string
	result any
	errMsg string
}

// fakeRecorder captures every notification and can be told to fail.
type fakeRecorder struct {
	mu          sync.Mutex
	fail        bool
	panics      bool
	regs        []callbus.Registration
	events      []*callbus.Event
	started     []string // taskID/eventID pairs
	completions []completion
	next        int
}

func (r *fakeRecorder) id(prefix string) string {
	r.next++
	return prefix + "-" + string(rune('0'+r.next))
}

func (r *fakeRecorder) check() error {
	if r.panics {
		panic("recorder exploded")
	}
	if r.fail {
		return errors.New("store unavailable")
	}
	return nil
}

func (r *fakeRecorder) SubscriptionRegistered(_ context.Context, reg callbus.Registration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return "", err
	}
	r.regs = append(r.regs, reg)
	return r.id("task"), nil
}

func (r *fakeRecorder) EventEmitted(_ context.Context, evt *callbus.Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return "", err
	}
	r.events = append(r.events, evt)
	return r.id("event"), nil
}

func (r *fakeRecorder) ExecutionStarted(_ context.Context, taskID, eventID string, _ *callbus.Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return "", err
	}
	r.started = append(r.started, taskID+"/"+eventID)
	return r.id("exec"), nil
}

func (r *fakeRecorder) ExecutionCompleted(_ context.Context, execID string, result any, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.check(); err != nil {
		return err
	}
	r.completions = append(r.completions, completion{execID, result, errMsg})
	return nil
}

func TestRecorder_Lifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	bus := newBus(t, callbus.WithRecorder(rec))

	id, err := bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return "ok", nil
	}), callbus.WithPriority(callbus.High), callbus.WithFilter("source", "api"), callbus.Once())
	require.NoError(t, err)
	_, err = bus.Register("evt", callbus.Async(func(context.Context, *callbus.Event) (any, error) {
		return nil, errors.New("bad")
	}))
	require.NoError(t, err)

	results, err := bus.Emit(context.Background(), "evt", callbus.WithSource("api"))
	require.NoError(t, err)
	callbus.WaitForAll(context.Background(), results)
	require.NoError(t, bus.Close(context.Background()))

	rec.mu.Lock()
	defer rec.mu.Unlock()

	require.Len(t, rec.regs, 2)
	assert.Equal(t, id, rec.regs[0].SubscriptionID)
	assert.Equal(t, callbus.High, rec.regs[0].Priority)
	assert.True(t, rec.regs[0].Once)
	assert.Equal(t, map[string]any{"source": "api"}, rec.regs[0].Filters)
	assert.True(t, rec.regs[1].Async)

	info, ok := bus.Subscription(results[1].SubscriptionID)
	require.True(t, ok)
	assert.Equal(t, "task-2", info.TaskID)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "api", rec.events[0].Source)
	assert.Equal(t, []string{"task-1/event-3", "task-2/event-3"}, rec.started)

	require.Len(t, rec.completions, 2)
	assert.Equal(t, completion{"exec-4", "ok", ""}, rec.completions[0])
	assert.Equal(t, "exec-5", rec.completions[1].execID)
	assert.Contains(t, rec.completions[1].errMsg, "bad")
}

func TestRecorder_FailuresDoNotChangeResults(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			rec := &fakeRecorder{fail: mode == "error", panics: mode == "panic"}
			bus := newBus(t, callbus.WithRecorder(rec))

			_, err := bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
				return 1, nil
			}))
			require.NoError(t, err)
			_, err = bus.Register("evt", callbus.Async(func(context.Context, *callbus.Event) (any, error) {
				return 2, nil
			}))
			require.NoError(t, err)

			results, err := bus.Emit(context.Background(), "evt")
			require.NoError(t, err)
			assert.Equal(t, []any{1, 2}, values(callbus.WaitForAll(context.Background(), results)))

			for _, info := range bus.Subscriptions() {
				assert.Empty(t, info.TaskID)
			}
		})
	}
}

func TestRecorder_NilRestoresNoop(t *testing.T) {
	bus := newBus(t, callbus.WithRecorder(nil))
	_, err := bus.Register("evt", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return nil, nil
	}))
	require.NoError(t, err)

	results, err := bus.Emit(context.Background(), "evt")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestNoopRecorder(t *testing.T) {
	var r callbus.Recorder = callbus.NoopRecorder{}
	ctx := context.Background()

	id, err := r.SubscriptionRegistered(ctx, callbus.Registration{})
	assert.NoError(t, err)
	assert.Empty(t, id)
	id, err = r.EventEmitted(ctx, &callbus.Event{})
	assert.NoError(t, err)
	assert.Empty(t, id)
	id, err = r.ExecutionStarted(ctx, "", "", nil)
	assert.NoError(t, err)
	assert.Empty(t, id)
	assert.NoError(t, r.ExecutionCompleted(ctx, "", nil, ""))
}

// stalledRecorder blocks ExecutionCompleted until released.
type stalledRecorder struct {
	callbus.NoopRecorder
	entered chan struct{}
	release chan struct{}
}

func (r *stalledRecorder) ExecutionStarted(context.Context, string, string, *callbus.Event) (string, error) {
	return "exec-1", nil
}

func (r *stalledRecorder) ExecutionCompleted(context.Context, string, any, string) error {
	close(r.entered)
	<-r.release
	return nil
}

func TestRecorder_SlowCompletionDoesNotDelayAsyncResult(t *testing.T) {
	rec := &stalledRecorder{entered: make(chan struct{}), release: make(chan struct{})}
	bus := newBus(t, callbus.WithRecorder(rec))
	t.Cleanup(func() { close(rec.release) })

	_, err := bus.Register("evt", callbus.Async(func(context.Context, *callbus.Event) (any, error) {
		return "value", nil
	}))
	require.NoError(t, err)

	results, err := bus.Emit(context.Background(), "evt")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	settled := callbus.WaitForAll(ctx, results)
	require.Len(t, settled, 1)
	require.True(t, settled[0].OK(), "err: %v", settled[0].Err)
	assert.Equal(t, "value", settled[0].Value)

	select {
	case <-rec.entered:
	case <-time.After(time.Second):
		t.Fatal("ExecutionCompleted was never called")
	}
}
