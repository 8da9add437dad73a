package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/routing"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

var testReplicas = []string{"replica-1", "replica-2", "replica-3"}

// countingLoads wraps a Loads and counts mutations.
type countingLoads struct {
	state.Loads
	increments atomic.Int64
	decrements atomic.Int64
}

func (c *countingLoads) Increment(ctx context.Context, key string) error {
	c.increments.Add(1)
	return c.Loads.Increment(ctx, key)
}

func (c *countingLoads) DecrementClamped(ctx context.Context, key string) error {
	c.decrements.Add(1)
	return c.Loads.DecrementClamped(ctx, key)
}

// failingQueue rejects every push.
type failingQueue struct {
	state.Queue
}

func (failingQueue) Push(context.Context, string, []byte) error {
	return errors.New("queue down")
}

func newTestOrchestrator(queue state.Queue, mem *state.Memory, loads state.Loads, cfg Config) *Orchestrator {
	selector := routing.NewSelector(testReplicas, loads)
	return NewOrchestrator(queue, mem, loads, selector, cfg)
}

// completeJobs emulates the pipeline: it pops dispatched queries off the
// encode queue and writes a completion record for each.
func completeJobs(ctx context.Context, t *testing.T, mem *state.Memory, answer string) {
	t.Helper()
	for ctx.Err() == nil {
		raw, err := mem.Pop(ctx, job.QueueEncode, 50*time.Millisecond)
		if err != nil || raw == nil {
			continue
		}
		q, err := job.DecodeQuery(raw)
		if err != nil {
			t.Errorf("dispatched query is malformed: %v", err)
			return
		}
		payload, _ := json.Marshal(job.Completion{JobID: q.JobID, Answer: answer, LatencyMS: 1.5})
		mem.Put(ctx, job.CompletionKey(q.JobID), payload, time.Minute)
	}
}

func TestHandleSuccess(t *testing.T) {
	mem := state.NewMemory()
	loads := &countingLoads{Loads: mem.Loads()}
	o := newTestOrchestrator(mem, mem, loads, Config{PollInterval: 5 * time.Millisecond, Deadline: 2 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go completeJobs(ctx, t, mem, "the answer")

	res, err := o.Handle(ctx, "what is RAG?")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Answer != "the answer" {
		t.Errorf("Answer = %q, want %q", res.Answer, "the answer")
	}
	if res.JobID == "" {
		t.Error("JobID is empty")
	}
	if res.SelectedReplica == "" {
		t.Error("SelectedReplica is empty")
	}
	if res.LatencyMS <= 0 {
		t.Errorf("LatencyMS = %v, want > 0", res.LatencyMS)
	}

	if got := loads.increments.Load(); got != 1 {
		t.Errorf("increments = %d, want 1", got)
	}
	if got := loads.decrements.Load(); got != 1 {
		t.Errorf("decrements = %d, want 1", got)
	}
	for idx := range testReplicas {
		if v, _ := loads.Get(ctx, job.LoadKey(idx)); v != 0 {
			t.Errorf("load counter %d = %d after completion, want 0", idx, v)
		}
	}
}

func TestHandleDispatchFailure(t *testing.T) {
	mem := state.NewMemory()
	loads := &countingLoads{Loads: mem.Loads()}
	o := newTestOrchestrator(failingQueue{}, mem, loads, Config{PollInterval: 5 * time.Millisecond, Deadline: time.Second})

	_, err := o.Handle(context.Background(), "q")
	if !errors.Is(err, ErrDispatch) {
		t.Fatalf("error = %v, want ErrDispatch", err)
	}

	// The optimistic increment must be rolled back.
	if got := loads.increments.Load(); got != 1 {
		t.Errorf("increments = %d, want 1", got)
	}
	if got := loads.decrements.Load(); got != 1 {
		t.Errorf("decrements = %d, want 1", got)
	}
	for idx := range testReplicas {
		if v, _ := loads.Get(context.Background(), job.LoadKey(idx)); v != 0 {
			t.Errorf("load counter %d = %d after dispatch failure, want 0", idx, v)
		}
	}
}

func TestHandleTimeout(t *testing.T) {
	mem := state.NewMemory()
	loads := &countingLoads{Loads: mem.Loads()}
	o := newTestOrchestrator(mem, mem, loads, Config{PollInterval: 5 * time.Millisecond, Deadline: 30 * time.Millisecond})

	_, err := o.Handle(context.Background(), "q")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if got := loads.decrements.Load(); got != 1 {
		t.Errorf("decrements = %d, want exactly 1", got)
	}
	for idx := range testReplicas {
		if v, _ := loads.Get(context.Background(), job.LoadKey(idx)); v != 0 {
			t.Errorf("load counter %d = %d after timeout, want 0", idx, v)
		}
	}
}

func TestHandleCallerDisconnect(t *testing.T) {
	mem := state.NewMemory()
	loads := &countingLoads{Loads: mem.Loads()}
	o := newTestOrchestrator(mem, mem, loads, Config{PollInterval: 5 * time.Millisecond, Deadline: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := o.Handle(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	// Cleanup runs despite the cancelled request context.
	if got := loads.decrements.Load(); got != 1 {
		t.Errorf("decrements = %d, want 1", got)
	}
}

func TestHandleRoutesLeastLoaded(t *testing.T) {
	mem := state.NewMemory()
	loads := mem.Loads()
	ctx := context.Background()

	// replica-1 and replica-3 busy, replica-2 idle.
	loads.Increment(ctx, job.LoadKey(0))
	loads.Increment(ctx, job.LoadKey(0))
	loads.Increment(ctx, job.LoadKey(2))

	o := newTestOrchestrator(mem, mem, loads, Config{PollInterval: 5 * time.Millisecond, Deadline: 2 * time.Second})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go completeJobs(runCtx, t, mem, "ok")

	res, err := o.Handle(runCtx, "q")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.SelectedReplica != "replica-2" {
		t.Errorf("SelectedReplica = %q, want %q", res.SelectedReplica, "replica-2")
	}
}
