package state

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process implementation of the shared-state services.
// It backs single-process deployments and tests; nothing survives a restart.
type Memory struct {
	mu          sync.Mutex
	queues      map[string][][]byte
	completions map[string]memoryEntry
	counters    map[string]int64
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

var (
	_ Queue       = (*Memory)(nil)
	_ Completions = (*Memory)(nil)
	_ Loads       = (*memoryLoads)(nil)
)

// NewMemory creates an empty in-memory state backend.
func NewMemory() *Memory {
	return &Memory{
		queues:      make(map[string][][]byte),
		completions: make(map[string]memoryEntry),
		counters:    make(map[string]int64),
	}
}

func (m *Memory) Push(_ context.Context, queue string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.queues[queue] = append(m.queues[queue], cp)
	return nil
}

// memoryPopTick is how often Pop re-checks the queue while blocking.
const memoryPopTick = 10 * time.Millisecond

func (m *Memory) Pop(ctx context.Context, queue string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		items := m.queues[queue]
		if len(items) > 0 {
			head := items[0]
			m.queues[queue] = items[1:]
			m.mu.Unlock()
			return head, nil
		}
		m.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(memoryPopTick):
		}
	}
}

func (m *Memory) Len(_ context.Context, queue string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[queue])), nil
}

func (m *Memory) Put(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	m.completions[key] = memoryEntry{payload: cp, expiresAt: expiresAt}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.completions[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.completions, key)
		return nil, false, nil
	}
	return entry.payload, true, nil
}

// Loads returns the load-counter view of this backend.
func (m *Memory) Loads() Loads {
	return &memoryLoads{m: m}
}

type memoryLoads struct {
	m *Memory
}

func (l *memoryLoads) Increment(_ context.Context, key string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.counters[key]++
	return nil
}

func (l *memoryLoads) DecrementClamped(_ context.Context, key string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.counters[key] > 0 {
		l.m.counters[key]--
	} else {
		l.m.counters[key] = 0
	}
	return nil
}

func (l *memoryLoads) Get(_ context.Context, key string) (int64, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.counters[key], nil
}
