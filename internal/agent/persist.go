package agent

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// StateStore persists paused runs so they can be resumed from a later
// process. Terminal runs are removed on completion.
type StateStore interface {
	SaveState(st *State) error
	// LoadState returns (nil, nil) when the id is unknown.
	LoadState(id string) (*State, error)
	DeleteState(id string) error
	Close() error
}

// SQLiteStateStore stores each run as one JSON row.
type SQLiteStateStore struct {
	db *sql.DB
}

// OpenSQLiteStateStore opens (or creates) the run state table.
func OpenSQLiteStateStore(dbPath string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS agent_states (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		state TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}
	return &SQLiteStateStore{db: db}, nil
}

// SaveState upserts the run.
func (s *SQLiteStateStore) SaveState(st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO agent_states (id, status, updated_at, state) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at, state=excluded.state`,
		st.ID, string(st.Status), st.UpdatedAt.UTC(), string(data))
	return err
}

// LoadState returns the stored run, or (nil, nil) when absent.
func (s *SQLiteStateStore) LoadState(id string) (*State, error) {
	var data string
	err := s.db.QueryRow(`SELECT state FROM agent_states WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", id, err)
	}
	return &st, nil
}

// DeleteState removes the run. Deleting an unknown id is not an error.
func (s *SQLiteStateStore) DeleteState(id string) error {
	_, err := s.db.Exec(`DELETE FROM agent_states WHERE id = ?`, id)
	return err
}

// Close closes the database.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}
