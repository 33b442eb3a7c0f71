// Package audit keeps a local history of finished quarantine runs in an
// embedded SQLite database. The history is a post-hoc operator record, not
// in-flight state: a crash mid-hold still leaves the shun on the device
// with nothing here to recover from.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"grimm.is/icebox/internal/quarantine"
)

// DefaultPath is the default history database location.
const DefaultPath = "/var/lib/icebox/history.db"

// Entry is one recorded quarantine run.
type Entry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Instance  string    `json:"instance"`
	Address   string    `json:"address"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
	RemovedAt time.Time `json:"removed_at,omitempty"`
	State     string    `json:"state"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// Store provides persistent storage for quarantine history.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
}

// NewStore opens (creating if necessary) the history database at path.
func NewStore(path string, retentionDays int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS quarantines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			instance TEXT NOT NULL,
			address TEXT NOT NULL,
			applied_at DATETIME,
			removed_at DATETIME,
			state TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_quarantines_instance ON quarantines(instance);
		CREATE INDEX IF NOT EXISTS idx_quarantines_address ON quarantines(address);
		CREATE INDEX IF NOT EXISTS idx_quarantines_applied ON quarantines(applied_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create quarantines table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Store{db: db, retentionDays: retentionDays}, nil
}

// RecordAction persists a finished quarantine run. It implements
// quarantine.Sink.
func (s *Store) RecordAction(ctx context.Context, rec *quarantine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	var appliedAt, removedAt any
	if !rec.AppliedAt.IsZero() {
		appliedAt = rec.AppliedAt.UTC()
	}
	if !rec.RemovedAt.IsZero() {
		removedAt = rec.RemovedAt.UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quarantines (run_id, instance, address, applied_at, removed_at, state, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Instance, rec.Address.String(), appliedAt, removedAt,
		rec.State.String(), quarantine.Outcome(rec.Err), errText)
	if err != nil {
		return fmt.Errorf("insert quarantine record: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, instance, address, applied_at, removed_at, state, outcome, error
		FROM quarantines ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query quarantine history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var appliedAt, removedAt sql.NullTime
		var errText sql.NullString

		if err := rows.Scan(&e.ID, &e.RunID, &e.Instance, &e.Address,
			&appliedAt, &removedAt, &e.State, &e.Outcome, &errText); err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}
		if appliedAt.Valid {
			e.AppliedAt = appliedAt.Time
		}
		if removedAt.Valid {
			e.RemovedAt = removedAt.Time
		}
		if errText.Valid {
			e.Error = errText.String
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune removes entries older than the retention period and returns how
// many were deleted.
func (s *Store) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.Exec("DELETE FROM quarantines WHERE applied_at IS NOT NULL AND applied_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune quarantine history: %w", err)
	}
	return result.RowsAffected()
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
