package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots as rows in a single table, one row per
// save, so an operator can inspect how the queue and roster looked across
// several restarts rather than only the most recent one. Events have their
// own SQLite-backed store (internal/events); this one is deliberately
// separate since a snapshot and an event have different retention needs — a
// snapshot history is browsed, an event queue is drained.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary creates) the snapshots table on
// db. The caller owns db's lifetime.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("persistence: initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		saved_at TIMESTAMP PRIMARY KEY,
		payload  TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Save inserts a new row for snap. SavedAt must be unique; BuildSnapshot
// stamps it with time.Now() at capture time, so successive snapshots won't
// collide in practice.
func (s *SQLiteStore) Save(snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("persistence: marshaling snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (saved_at, payload) VALUES (?, ?)`,
		snap.SavedAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("persistence: inserting snapshot: %w", err)
	}
	return nil
}

// Load returns the most recently saved snapshot, or a zero Snapshot if
// none has been saved yet.
func (s *SQLiteStore) Load() (Snapshot, error) {
	row := s.db.QueryRow(`SELECT payload FROM snapshots ORDER BY saved_at DESC LIMIT 1`)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("persistence: querying latest snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("persistence: parsing snapshot: %w", err)
	}
	return snap, nil
}

// Cleanup deletes all but the newest keep snapshots.
func (s *SQLiteStore) Cleanup(keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM snapshots WHERE saved_at NOT IN (
			SELECT saved_at FROM snapshots ORDER BY saved_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("persistence: cleaning up snapshots: %w", err)
	}
	return nil
}
