// Package queue carries finished runs from the API to the settlement worker.
//
// The queue is bounded: a full queue rejects new settlements instead of
// blocking the caller.
package queue

import (
	"context"
	"sync"

	"github.com/okian/ghostrun/internal/domain/model"
	"github.com/okian/ghostrun/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Settlement is the payload flowing through the queue.
type Settlement = model.Settlement

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a settlement. Returns ErrFull or ErrClosed when it was not queued.
	Enqueue(ctx context.Context, s Settlement) error

	// Dequeue returns a channel that receives settlements in FIFO order.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Settlement

	// Len returns the current number of queued settlements.
	Len(ctx context.Context) int

	Capacity() int

	// Close stops accepting settlements. Queued ones are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	settlements chan Settlement
	capacity    int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.settlements = make(chan Settlement, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue adds a settlement to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, s Settlement) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}

	select {
	case q.settlements <- s:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.settlements))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive settlements as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Settlement {
	out := make(chan Settlement)
	go func() {
		defer close(out)
		for s := range q.settlements {
			select {
			case out <- s:
				metrics.RecordQueueDequeue()
				metrics.UpdateQueueSize(len(q.settlements))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued settlements.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.settlements)
	metrics.UpdateQueueSize(size)
	return size
}

// Capacity returns the configured bound.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.settlements)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
