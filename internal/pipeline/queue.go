// Package pipeline implements the bounded download/dedup/persist pipeline:
// discovery feeds a task queue drained by download workers, which feed a
// second queue drained by hash-and-persist workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQueueClosed is returned by Dequeue once the queue is closed and every
// previously enqueued item has been delivered. Workers treat it as their
// stop signal, which gives graceful drain semantics for free.
var ErrQueueClosed = errors.New("queue closed")

// queue is a bounded in-memory queue with context-aware operations.
// Enqueue must not be called after Close; the pipeline guarantees producers
// stop before their queue is closed.
type queue[T any] struct {
	ch      chan T
	closeMu sync.Mutex
	closed  bool
}

func newQueue[T any](capacity int) *queue[T] {
	return &queue[T]{ch: make(chan T, capacity)}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *queue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. After Close,
// buffered items keep draining; only then does ErrQueueClosed surface.
func (q *queue[T]) Dequeue(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return zero, ErrQueueClosed
		}
		return item, nil
	}
}

// Close signals consumers that no further items will arrive. Safe to call
// more than once.
func (q *queue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
