package record_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/callbus/pkg/callbus"
	"github.com/randalmurphal/callbus/pkg/callbus/record"
)

func TestRecorder_WithBus(t *testing.T) {
	store, err := record.NewSQLiteStore(filepath.Join(t.TempDir(), "bus.db"))
	require.NoError(t, err)
	defer store.Close()

	rec := record.NewRecorder(store)
	bus := callbus.New(callbus.WithRecorder(rec))

	_, err = bus.Register("order.paid", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return map[string]any{"ok": true}, nil
	}), callbus.WithPriority(callbus.High), callbus.Once())
	require.NoError(t, err)
	_, err = bus.Register("order.paid", callbus.Async(func(context.Context, *callbus.Event) (any, error) {
		return nil, errors.New("declined")
	}), callbus.InNamespace("billing"))
	require.NoError(t, err)
	_, err = bus.RegisterGlobal(callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return "seen", nil
	}), callbus.WithPriority(callbus.Background))
	require.NoError(t, err)

	ctx := context.Background()
	results, err := bus.Emit(ctx, "order.paid", callbus.WithNamespace("billing"), callbus.WithUser("u1"))
	require.NoError(t, err)
	callbus.WaitForAll(ctx, results)
	_, err = bus.Emit(ctx, "order.refunded")
	require.NoError(t, err)

	require.NoError(t, bus.Close(ctx))
	require.NoError(t, rec.Close(ctx))

	st, err := store.Stats(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalEvents)
	assert.Equal(t, int64(4), st.TotalExecutions)
	assert.Equal(t, int64(3), st.SuccessfulExecutions)
	assert.Equal(t, int64(1), st.FailedExecutions)
	assert.Equal(t, int64(1), st.AsyncExecutions)
	assert.Equal(t, int64(2), st.ActiveTasks, "once task is deactivated")
	assert.Equal(t, []record.NameCount{{Name: "billing", Count: 1}}, st.TopNamespaces)

	history, err := store.History(ctx, "order.paid", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	var failed []record.HistoryEntry
	for _, h := range history {
		assert.Equal(t, "u1", h.Context["user_id"])
		if h.Status == record.StatusFailed {
			failed = append(failed, h)
		}
	}
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "declined")

	tasks, err := store.ActiveTasks(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "order.paid", tasks[0].EventName)
	assert.True(t, tasks[1].Global)
	assert.Equal(t, int64(2), tasks[1].ExecutionCount)
}

func TestRecorder_UnregisteredTaskStaysActive(t *testing.T) {
	store := record.NewMemoryStore()
	rec := record.NewRecorder(store)
	bus := callbus.New(callbus.WithRecorder(rec))
	ctx := context.Background()

	id, err := bus.Register("user.created", callbus.Sync(func(context.Context, *callbus.Event) (any, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	require.Equal(t, 1, bus.Unregister(callbus.Selector{ID: id}))

	require.NoError(t, bus.Close(ctx))
	require.NoError(t, rec.Close(ctx))

	assert.Empty(t, bus.Subscriptions())
	tasks, err := store.ActiveTasks(ctx, "user.created", "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, id, tasks[0].SubscriptionID)
}

// blockingStore stalls SaveEvent until released.
type blockingStore struct {
	*record.MemoryStore
	release chan struct{}
}

func (s *blockingStore) SaveEvent(ctx context.Context, evt record.EventRecord) error {
	<-s.release
	return s.MemoryStore.SaveEvent(ctx, evt)
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	store := &blockingStore{MemoryStore: record.NewMemoryStore(), release: make(chan struct{})}

	var mu sync.Mutex
	var dropped []string
	rec := record.NewRecorder(store, record.WithBuffer(1), record.WithOnDrop(func(op string) {
		mu.Lock()
		dropped = append(dropped, op)
		mu.Unlock()
	}))

	ctx := context.Background()
	evt := &callbus.Event{ID: "1", Name: "e", Timestamp: time.Now()}

	// The first write occupies the drain goroutine, the second fills the
	// buffer, and the rest are dropped without blocking.
	_, err := rec.EventEmitted(ctx, evt)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, _ = rec.EventEmitted(ctx, evt)
		mu.Lock()
		defer mu.Unlock()
		return len(dropped) > 0
	}, time.Second, time.Millisecond)

	close(store.release)
	require.NoError(t, rec.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, record.OpSaveEvent, dropped[0])
}

func TestRecorder_FlushAndClose(t *testing.T) {
	store := record.NewMemoryStore()
	rec := record.NewRecorder(store)
	ctx := context.Background()

	taskID, err := rec.SubscriptionRegistered(ctx, callbus.Registration{
		SubscriptionID: "sub", EventName: "e", Priority: callbus.Low,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	require.NoError(t, rec.Flush(ctx))
	tasks, err := store.ActiveTasks(ctx, "e", "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0].ID)
	assert.Equal(t, callbus.Low, tasks[0].Priority)

	require.NoError(t, rec.Close(ctx))
	require.NoError(t, rec.Close(ctx))

	_, err = rec.EventEmitted(ctx, &callbus.Event{Name: "e"})
	assert.ErrorIs(t, err, record.ErrRecorderClosed)
	assert.ErrorIs(t, rec.Flush(ctx), record.ErrRecorderClosed)
	assert.ErrorIs(t, rec.ExecutionCompleted(ctx, "x", nil, ""), record.ErrRecorderClosed)
}

func TestRecorder_StoreErrorsAreSwallowed(t *testing.T) {
	store := record.NewMemoryStore()
	rec := record.NewRecorder(store)
	ctx := context.Background()

	// Completing an unknown execution fails inside the store only.
	require.NoError(t, rec.ExecutionCompleted(ctx, "unknown", nil, ""))
	require.NoError(t, rec.Flush(ctx))
	require.NoError(t, rec.Close(ctx))
}
