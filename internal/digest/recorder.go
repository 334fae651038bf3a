package digest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder keeps a durable record of delivered digest batches.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLiteRecorder opens (or creates) the delivery table.
func OpenSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open digest db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS digest_deliveries (
		id TEXT PRIMARY KEY,
		delivered_at DATETIME NOT NULL,
		item_count INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply digest schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// RecordDelivery stores one delivered batch as a JSON payload.
func (r *SQLiteRecorder) RecordDelivery(deliveredAt time.Time, items []*Item) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`INSERT INTO digest_deliveries (id, delivered_at, item_count, payload) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), deliveredAt.UTC(), len(items), string(payload))
	return err
}

// Deliveries returns recorded batches, newest first.
func (r *SQLiteRecorder) Deliveries(limit int) ([]time.Time, []int, error) {
	rows, err := r.db.Query(`SELECT delivered_at, item_count FROM digest_deliveries ORDER BY delivered_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var times []time.Time
	var counts []int
	for rows.Next() {
		var t time.Time
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, nil, err
		}
		times = append(times, t)
		counts = append(counts, n)
	}
	return times, counts, rows.Err()
}

// Close closes the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
