// Package gateway accepts user queries, dispatches them into the pipeline
// with load-aware replica selection, and polls the completion store for the
// aggregated answer.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/routing"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

// ErrTimeout is returned when no completion record appears before the
// deadline. The job is abandoned, not cancelled; its eventual record is
// reclaimed by store expiry.
var ErrTimeout = errors.New("job timed out before completion")

// ErrDispatch is returned when the query job could not be published.
var ErrDispatch = errors.New("dispatch failure")

// Result is the aggregated response for one query.
type Result struct {
	JobID           string  `json:"job_id"`
	Answer          string  `json:"answer"`
	LatencyMS       float64 `json:"latency_ms"`
	SelectedReplica string  `json:"selected_replica"`
}

// Config tunes the orchestrator's poll loop.
type Config struct {
	// PollInterval is the fixed interval between completion-store reads.
	PollInterval time.Duration

	// Deadline caps the whole request, measured from request start rather
	// than from publish time.
	Deadline time.Duration
}

// Orchestrator runs the dispatch/poll protocol for inbound queries. It is
// safe for concurrent use; each request owns its own poll loop and deadline
// clock.
type Orchestrator struct {
	queue       state.Queue
	completions state.Completions
	loads       state.Loads
	selector    *routing.Selector
	cfg         Config
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(queue state.Queue, completions state.Completions, loads state.Loads, selector *routing.Selector, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 60 * time.Second
	}
	return &Orchestrator{
		queue:       queue,
		completions: completions,
		loads:       loads,
		selector:    selector,
		cfg:         cfg,
		logger:      slog.Default(),
	}
}

// Handle dispatches one query through the pipeline and waits for its
// completion record.
//
// The selected replica's load counter is incremented before the job is
// published (reserving capacity optimistically) and decremented exactly once
// on every exit path, including caller disconnect, so counters never leak.
func (o *Orchestrator) Handle(ctx context.Context, query string) (Result, error) {
	start := time.Now()
	jobID := uuid.New().String()

	sel := o.selector.Select(ctx)
	tracked := sel.UsedStore
	if tracked {
		if err := o.loads.Increment(ctx, job.LoadKey(sel.Index)); err != nil {
			// Routing already decided; just stop tracking this job's load.
			o.logger.Warn("incrementing replica load failed", "job_id", jobID, "replica", sel.Label, "error", err)
			tracked = false
		}
	}
	decremented := false
	decrement := func() {
		if !tracked || decremented {
			return
		}
		decremented = true
		// Cleanup must run even when the caller has disconnected.
		cleanupCtx := context.WithoutCancel(ctx)
		if err := o.loads.DecrementClamped(cleanupCtx, job.LoadKey(sel.Index)); err != nil {
			o.logger.Error("decrementing replica load failed", "job_id", jobID, "replica", sel.Label, "error", err)
		}
	}
	defer decrement()

	payload, err := json.Marshal(job.Query{JobID: jobID, Text: query, ReplicaIndex: sel.Index})
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshalling query job: %v", ErrDispatch, err)
	}
	if err := o.queue.Push(ctx, job.QueueEncode, payload); err != nil {
		return Result{}, fmt.Errorf("%w: publishing query job: %v", ErrDispatch, err)
	}
	o.logger.Info("job dispatched", "job_id", jobID, "replica", sel.Label)

	completionKey := job.CompletionKey(jobID)
	deadline := start.Add(o.cfg.Deadline)
	for {
		raw, ok, err := o.completions.Get(ctx, completionKey)
		if err != nil {
			// Transient store hiccups shouldn't fail a request that may yet
			// complete; keep polling until the deadline.
			o.logger.Warn("completion poll failed", "job_id", jobID, "error", err)
		} else if ok {
			c, err := job.DecodeCompletion(raw)
			if err != nil {
				return Result{}, fmt.Errorf("decoding completion for job %s: %w", jobID, err)
			}
			return Result{
				JobID:           jobID,
				Answer:          c.Answer,
				LatencyMS:       float64(time.Since(start)) / float64(time.Millisecond),
				SelectedReplica: sel.Label,
			}, nil
		}

		if !time.Now().Before(deadline) {
			return Result{}, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(o.cfg.PollInterval):
		}
	}
}
