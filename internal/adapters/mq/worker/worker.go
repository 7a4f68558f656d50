// Package worker applies queued settlements one at a time.
//
// A single worker is the only writer of the leaderboard: settlements are read
// from a FIFO queue and handed to the Processor sequentially.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/ghostrun/internal/domain/model"
	"github.com/okian/ghostrun/pkg/logger"
	"github.com/okian/ghostrun/pkg/metrics"
)

// Settlement is what the worker reads off the queue.
type Settlement = model.Settlement

// Processor applies one settlement.
type Processor interface {
	Settle(ctx context.Context, s Settlement) error
}

// Queue defines how the worker receives settlements.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Settlement
}

// Worker processes settlements until its queue is drained or it is stopped.
type Worker interface {
	// Run starts the worker loop. It returns when the queue channel closes,
	// ctx is cancelled, or Shutdown gives up waiting.
	Run(ctx context.Context)

	// Shutdown waits for Run to drain the queue. Close the queue first.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	shutdown chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, p Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		processor: p,
		name:      "settlement-worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	settlements := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case s, ok := <-settlements:
			if !ok {
				return
			}
			if err := w.process(ctx, s); err != nil {
				w.logger.Error(ctx, "settlement failed",
					logger.String("run_id", s.RunID),
					logger.String("account", s.Account),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown waits for the worker to finish. When ctx expires first the worker
// is stopped without draining.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.stopOnce.Do(func() { close(w.shutdown) })
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("%w: %w", ErrShutdownTimeout, ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process applies one settlement. A panic from the processor aborts only that
// settlement.
func (w *InMemoryWorker) process(ctx context.Context, s Settlement) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordFatal("panic")
			metrics.RecordErrorByComponent("worker", "panic")
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		if err != nil {
			metrics.RecordWorkerError()
		}
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	return w.processor.Settle(ctx, s)
}
