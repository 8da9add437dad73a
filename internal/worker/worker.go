// Package worker implements the stage workers that move jobs through the
// pipeline: each worker pops from one queue, invokes its stage's capability,
// and pushes the derived job to the next queue (or writes the completion
// record at the terminal stage).
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Handler processes one raw queue payload. Returning an error drops the job:
// there is no dead-letter queue or retry ledger in this design, and the loop
// carries on with the next item.
type Handler interface {
	Handle(ctx context.Context, raw []byte) error
}

// Popper is the queue side a worker consumes from.
type Popper interface {
	Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error)
}

const (
	// defaultPopTimeout bounds each blocking pop so the loop periodically
	// gets control back to check for shutdown.
	defaultPopTimeout = 5 * time.Second

	// popErrorPause is how long the loop waits after a queue error before
	// retrying, so a down queue does not spin the worker hot.
	popErrorPause = 5 * time.Second
)

// Worker runs a single stage loop against one input queue.
type Worker struct {
	name       string
	queue      Popper
	inQueue    string
	handler    Handler
	popTimeout time.Duration
	logger     *slog.Logger
}

// New creates a stage worker. name labels log lines; inQueue is the queue it
// consumes. If popTimeout is <= 0, it defaults to 5s.
func New(name string, queue Popper, inQueue string, handler Handler, popTimeout time.Duration) *Worker {
	if popTimeout <= 0 {
		popTimeout = defaultPopTimeout
	}
	return &Worker{
		name:       name,
		queue:      queue,
		inQueue:    inQueue,
		handler:    handler,
		popTimeout: popTimeout,
		logger:     slog.Default().With("worker", name),
	}
}

// Run consumes jobs until ctx is cancelled. It never returns under normal
// operation: handler errors and queue errors are logged and the loop
// continues.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker listening", "queue", w.inQueue)
	for {
		if ctx.Err() != nil {
			return
		}

		raw, err := w.queue.Pop(ctx, w.inQueue, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("popping job failed", "queue", w.inQueue, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(popErrorPause):
			}
			continue
		}
		if raw == nil {
			// Timed out with no item; loop again.
			continue
		}

		if err := w.handler.Handle(ctx, raw); err != nil {
			// Dropped, not requeued. A malformed payload is not expected to
			// recur from the same cause, and transient failures are only
			// retried inside the generate stage.
			w.logger.Warn("dropping job", "queue", w.inQueue, "error", err)
		}
	}
}
