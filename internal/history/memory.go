package history

import (
	"sort"
	"sync"
	"time"

	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// MemoryStore implements Store without persistence. It is the degraded
// mode when the SQLite store cannot be opened, and the test fixture.
type MemoryStore struct {
	mu    sync.Mutex
	pairs map[protocol.PairKey]PairRecord
	runs  []protocol.RunStats
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pairs: make(map[protocol.PairKey]PairRecord)}
}

func (m *MemoryStore) Load() (*PairSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := NewPairSet()
	for k := range m.pairs {
		set.Add(k)
	}
	return set, nil
}

func (m *MemoryStore) RecordPair(rec PairRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pairs[rec.Pair]; !ok {
		m.pairs[rec.Pair] = rec
	}
	return nil
}

func (m *MemoryStore) RecentPairs(limit int) ([]PairRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]PairRecord, 0, len(m.pairs))
	for _, rec := range m.pairs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordedAt.After(recs[j].RecordedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (m *MemoryStore) RecordRun(stats protocol.RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, stats)
	return nil
}

func (m *MemoryStore) RunsSince(since time.Time) ([]protocol.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []protocol.RunStats
	for _, r := range m.runs {
		if !r.StartedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) LastRun() (*protocol.RunStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.runs) == 0 {
		return nil, nil
	}
	last := m.runs[0]
	for _, r := range m.runs[1:] {
		if r.StartedAt.After(last.StartedAt) {
			last = r
		}
	}
	return &last, nil
}

func (m *MemoryStore) Close() error { return nil }
