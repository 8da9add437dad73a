// Package routing implements the least-loaded replica selection heuristic
// used by the gateway to spread generation work across logical replicas.
package routing

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Seaweed-Boi/Elastic-Rag/internal/job"
	"github.com/Seaweed-Boi/Elastic-Rag/internal/state"
)

// Selection is the outcome of one routing decision. UsedStore reports
// whether the shared load counters informed the choice; when false the
// selection came from the local round-robin fallback and no counter was
// consulted.
type Selection struct {
	Index     int
	Label     string
	UsedStore bool
}

// Selector picks a replica for each dispatched job. Selection reads are
// best-effort: a race with another gateway's increment is acceptable because
// the heuristic is advisory load balancing, not admission control.
type Selector struct {
	replicas []string
	loads    state.Loads
	logger   *slog.Logger

	// rr is the process-local fallback counter used when the load store is
	// unreachable. It is not shared across gateway instances.
	rr atomic.Uint64
}

// NewSelector creates a Selector over a fixed, ordered replica set.
func NewSelector(replicas []string, loads state.Loads) *Selector {
	return &Selector{
		replicas: replicas,
		loads:    loads,
		logger:   slog.Default(),
	}
}

// Select returns the replica with the strictly smallest current load
// counter, ties broken by lowest index. If any counter read fails the
// selector degrades to a local round-robin over the replica set.
func (s *Selector) Select(ctx context.Context) Selection {
	best := 0
	var bestLoad int64 = -1
	for idx := range s.replicas {
		load, err := s.loads.Get(ctx, job.LoadKey(idx))
		if err != nil {
			s.logger.Warn("load store unreachable, falling back to round-robin", "error", err)
			return s.roundRobin()
		}
		if bestLoad < 0 || load < bestLoad {
			best = idx
			bestLoad = load
		}
	}
	return Selection{Index: best, Label: s.replicas[best], UsedStore: true}
}

func (s *Selector) roundRobin() Selection {
	n := s.rr.Add(1) - 1
	idx := int(n % uint64(len(s.replicas)))
	return Selection{Index: idx, Label: s.replicas[idx], UsedStore: false}
}

// Replicas returns the ordered replica labels.
func (s *Selector) Replicas() []string {
	return s.replicas
}
