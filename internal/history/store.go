// Package history persists which ticket pairs have already been judged,
// making the whole pipeline idempotent across overlapping runs.
package history

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// PairRecord is one persisted ledger entry.
type PairRecord struct {
	Pair       protocol.PairKey `json:"pair"`
	RecordedAt time.Time        `json:"recorded_at"`
	RunID      string           `json:"run_id"`
	Cancelled  bool             `json:"cancelled"`
}

// Store is the persistence interface for the dedup ledger and run stats.
type Store interface {
	// Load returns a snapshot of all recorded pairs, taken at run start.
	Load() (*PairSet, error)
	// RecordPair adds a judged pair. Pairs are recorded once and never
	// updated or deleted.
	RecordPair(rec PairRecord) error
	// RecentPairs returns the newest ledger entries, newest first.
	RecentPairs(limit int) ([]PairRecord, error)
	// RecordRun stores the summary of one batch run.
	RecordRun(stats protocol.RunStats) error
	// RunsSince returns runs that started at or after the given time,
	// oldest first.
	RunsSince(since time.Time) ([]protocol.RunStats, error)
	// LastRun returns the most recent run, or nil when none exist.
	LastRun() (*protocol.RunStats, error)
	// Close releases the underlying storage.
	Close() error
}

// PairSet is an in-memory snapshot of recorded pairs. Safe for
// concurrent lookups.
type PairSet struct {
	mu    sync.RWMutex
	pairs map[protocol.PairKey]struct{}
}

// NewPairSet returns an empty set.
func NewPairSet() *PairSet {
	return &PairSet{pairs: make(map[protocol.PairKey]struct{})}
}

// Contains reports whether the pair has been recorded.
func (s *PairSet) Contains(k protocol.PairKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[k]
	return ok
}

// Add inserts a pair into the snapshot.
func (s *PairSet) Add(k protocol.PairKey) {
	s.mu.Lock()
	s.pairs[k] = struct{}{}
	s.mu.Unlock()
}

// Len returns the number of recorded pairs.
func (s *PairSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// OpenOrFallback opens the SQLite-backed store at path. A store that
// cannot be opened degrades to an in-memory ledger with a warning:
// availability over strict idempotence, as re-flagged pairs only cost a
// redundant cancel attempt against already-settled tickets.
func OpenOrFallback(path string, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := NewSQLiteStore(path)
	if err != nil {
		logger.Warn("history store unavailable, starting with empty ledger",
			"path", path,
			"error", err,
		)
		return NewMemoryStore()
	}
	return s
}
