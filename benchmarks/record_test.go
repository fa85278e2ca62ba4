package benchmarks

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/callbus/pkg/callbus"
	"github.com/randalmurphal/callbus/pkg/callbus/record"
)

func stores(b *testing.B) map[string]record.Store {
	b.Helper()
	dir := b.TempDir()
	sqlite, err := record.NewSQLiteStore(filepath.Join(dir, "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	bolt, err := record.NewBoltStore(filepath.Join(dir, "bench.bolt"))
	if err != nil {
		b.Fatal(err)
	}
	all := map[string]record.Store{
		"memory": record.NewMemoryStore(),
		"sqlite": sqlite,
		"bolt":   bolt,
	}
	b.Cleanup(func() {
		for _, s := range all {
			_ = s.Close()
		}
	})
	return all
}

// BenchmarkStore_Execution measures one start/complete pair per iteration.
func BenchmarkStore_Execution(b *testing.B) {
	for name, store := range stores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			now := time.Now()
			_ = store.SaveTask(ctx, record.Task{ID: "task", EventName: "bench", Active: true, CreatedAt: now})
			_ = store.SaveEvent(ctx, record.EventRecord{ID: "event", Name: "bench", CreatedAt: now})

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				id := fmt.Sprintf("exec-%d", i)
				_ = store.StartExecution(ctx, record.Execution{ID: id, TaskID: "task", EventID: "event", StartedAt: now})
				_ = store.CompleteExecution(ctx, id, map[string]any{"ok": true}, "", now)
			}
		})
	}
}

// BenchmarkStore_Stats measures aggregation over 1000 executions.
func BenchmarkStore_Stats(b *testing.B) {
	for name, store := range stores(b) {
		b.Run(name, func(b *testing.B) {
			ctx := context.Background()
			now := time.Now()
			for i := range 1000 {
				task := fmt.Sprintf("task-%d", i%10)
				event := fmt.Sprintf("event-%d", i)
				_ = store.SaveTask(ctx, record.Task{ID: task, EventName: "bench", Active: true, CreatedAt: now})
				_ = store.SaveEvent(ctx, record.EventRecord{ID: event, Name: fmt.Sprintf("bench.%d", i%20), Namespace: "ns", CreatedAt: now})
				_ = store.StartExecution(ctx, record.Execution{ID: event, TaskID: task, EventID: event, StartedAt: now})
				_ = store.CompleteExecution(ctx, event, nil, "", now)
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = store.Stats(ctx, now.Add(-time.Hour))
			}
		})
	}
}

// BenchmarkEmit_Recorded measures dispatch with the async recorder attached.
func BenchmarkEmit_Recorded(b *testing.B) {
	rec := record.NewRecorder(record.NewMemoryStore(), record.WithBuffer(1<<16))
	bus := newBus(b, callbus.WithRecorder(rec))
	b.Cleanup(func() { _ = rec.Close(context.Background()) })
	for range 5 {
		_, _ = bus.Register("bench", callbus.Sync(noop))
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = bus.Emit(ctx, "bench")
	}
}
