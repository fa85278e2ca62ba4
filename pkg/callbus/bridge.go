package callbus

import (
	"context"
	"sync"
)

// bridge runs async callbacks on a fixed pool of workers fed by a bounded queue.
type bridge struct {
	queue chan func()
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newBridge(workers, queueSize int) *bridge {
	b := &bridge{
		queue: make(chan func(), queueSize),
	}
	for range workers {
		b.wg.Add(1)
		go b.work()
	}
	return b
}

func (b *bridge) work() {
	defer b.wg.Done()
	for task := range b.queue {
		task()
	}
}

// submit enqueues task without blocking. It returns ErrQueueFull when the
// queue has no room and ErrBusClosed after shutdown.
func (b *bridge) submit(task func()) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	select {
	case b.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// depth returns the number of queued tasks not yet picked up by a worker.
func (b *bridge) depth() int {
	return len(b.queue)
}

// close stops intake and waits for queued tasks to finish or ctx to end.
func (b *bridge) close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
