package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history store: open: %w", err)
	}

	// Enable WAL mode for better concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history store: wal: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_pairs (
			key1        TEXT NOT NULL,
			key2        TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			run_id      TEXT NOT NULL DEFAULT '',
			cancelled   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (key1, key2)
		);

		CREATE TABLE IF NOT EXISTS runs (
			id             TEXT PRIMARY KEY,
			started_at     TEXT NOT NULL,
			finished_at    TEXT NOT NULL,
			projects       TEXT NOT NULL DEFAULT '',
			scanned        INTEGER NOT NULL DEFAULT 0,
			pairs_found    INTEGER NOT NULL DEFAULT 0,
			cancelled      INTEGER NOT NULL DEFAULT 0,
			avg_confidence REAL NOT NULL DEFAULT 0,
			dry_run        INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_pairs_recorded ON processed_pairs(recorded_at);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("history store: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load() (*PairSet, error) {
	rows, err := s.db.Query(`SELECT key1, key2 FROM processed_pairs`)
	if err != nil {
		return nil, fmt.Errorf("history store: load: %w", err)
	}
	defer rows.Close()

	set := NewPairSet()
	for rows.Next() {
		var k1, k2 string
		if err := rows.Scan(&k1, &k2); err != nil {
			return nil, fmt.Errorf("history store: load scan: %w", err)
		}
		set.Add(protocol.NewPairKey(k1, k2))
	}
	return set, rows.Err()
}

func (s *SQLiteStore) RecordPair(rec PairRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO processed_pairs (key1, key2, recorded_at, run_id, cancelled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key1, key2) DO NOTHING
	`, rec.Pair.First, rec.Pair.Second, rec.RecordedAt.UTC().Format(time.RFC3339), rec.RunID, boolInt(rec.Cancelled))
	if err != nil {
		return fmt.Errorf("history store: record pair: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentPairs(limit int) ([]PairRecord, error) {
	query := `SELECT key1, key2, recorded_at, run_id, cancelled FROM processed_pairs ORDER BY recorded_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("history store: recent pairs: %w", err)
	}
	defer rows.Close()

	var recs []PairRecord
	for rows.Next() {
		var rec PairRecord
		var k1, k2, recordedAt string
		var cancelled int
		if err := rows.Scan(&k1, &k2, &recordedAt, &rec.RunID, &cancelled); err != nil {
			return nil, fmt.Errorf("history store: recent pairs scan: %w", err)
		}
		rec.Pair = protocol.NewPairKey(k1, k2)
		rec.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		rec.Cancelled = cancelled != 0
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) RecordRun(stats protocol.RunStats) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, finished_at, projects, scanned, pairs_found, cancelled, avg_confidence, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stats.ID,
		stats.StartedAt.UTC().Format(time.RFC3339),
		stats.FinishedAt.UTC().Format(time.RFC3339),
		strings.Join(stats.Projects, ","),
		stats.Scanned, stats.PairsFound, stats.Cancelled, stats.AvgConfidence, boolInt(stats.DryRun))
	if err != nil {
		return fmt.Errorf("history store: record run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RunsSince(since time.Time) ([]protocol.RunStats, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, projects, scanned, pairs_found, cancelled, avg_confidence, dry_run
		FROM runs WHERE started_at >= ? ORDER BY started_at
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("history store: runs since: %w", err)
	}
	defer rows.Close()

	var runs []protocol.RunStats
	for rows.Next() {
		stats, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history store: runs scan: %w", err)
		}
		runs = append(runs, *stats)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) LastRun() (*protocol.RunStats, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, projects, scanned, pairs_found, cancelled, avg_confidence, dry_run
		FROM runs ORDER BY started_at DESC LIMIT 1
	`)
	if err != nil {
		return nil, fmt.Errorf("history store: last run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	stats, err := scanRun(rows)
	if err != nil {
		return nil, fmt.Errorf("history store: last run scan: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection (for testing or direct access).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func scanRun(rows *sql.Rows) (*protocol.RunStats, error) {
	var stats protocol.RunStats
	var startedAt, finishedAt, projects string
	var dryRun int

	err := rows.Scan(&stats.ID, &startedAt, &finishedAt, &projects,
		&stats.Scanned, &stats.PairsFound, &stats.Cancelled, &stats.AvgConfidence, &dryRun)
	if err != nil {
		return nil, err
	}

	stats.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	stats.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
	if projects != "" {
		stats.Projects = strings.Split(projects, ",")
	}
	stats.DryRun = dryRun != 0
	return &stats, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
