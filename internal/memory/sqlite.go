package memory

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores records in a memory_records table. Embeddings are
// little-endian float32 BLOBs; similarity is computed in Go over the
// in-memory index, so the table only needs durable storage.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend opens (or creates) the database and applies the schema.
func OpenSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS memory_records (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		type TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 3,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME,
		source TEXT NOT NULL DEFAULT 'learned',
		tags TEXT DEFAULT '',
		embedding BLOB
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply memory schema: %w", err)
	}
	// Best-effort migrations for databases created by earlier versions
	// (no-op when the column already exists).
	_, _ = db.Exec(`ALTER TABLE memory_records ADD COLUMN tags TEXT DEFAULT ''`)
	_, _ = db.Exec(`ALTER TABLE memory_records ADD COLUMN embedding BLOB`)
	_, _ = db.Exec(`ALTER TABLE memory_records ADD COLUMN last_used_at DATETIME`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_memory_records_type ON memory_records(type)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_memory_records_priority ON memory_records(priority)`)

	return &SQLiteBackend{db: db}, nil
}

// Append inserts a record. Records are append-only; an id collision is an
// error, not an update.
func (b *SQLiteBackend) Append(rec *Record) error {
	var lastUsed any
	if rec.LastUsedAt != nil {
		lastUsed = rec.LastUsedAt.UTC()
	}
	_, err := b.db.Exec(`
		INSERT INTO memory_records (id, text, type, priority, created_at, last_used_at, source, tags, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Text, string(rec.Type), rec.Priority, rec.CreatedAt.UTC(),
		lastUsed, string(rec.Source), strings.Join(rec.Tags, ","), encodeFloat32s(rec.Vector),
	)
	return err
}

// TouchLastUsed updates the only mutable column.
func (b *SQLiteBackend) TouchLastUsed(id string, t time.Time) error {
	_, err := b.db.Exec(`UPDATE memory_records SET last_used_at = ? WHERE id = ?`, t.UTC(), id)
	return err
}

// LoadAll reads every record into memory.
func (b *SQLiteBackend) LoadAll() ([]*Record, error) {
	rows, err := b.db.Query(`
		SELECT id, text, type, priority, created_at, last_used_at, source, tags, embedding
		FROM memory_records ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			rec      Record
			typ, src string
			lastUsed sql.NullTime
			tags     string
			blob     []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &typ, &rec.Priority, &rec.CreatedAt,
			&lastUsed, &src, &tags, &blob); err != nil {
			return nil, err
		}
		rec.Type = Type(typ)
		rec.Source = Source(src)
		if lastUsed.Valid {
			t := lastUsed.Time
			rec.LastUsedAt = &t
		}
		if tags != "" {
			rec.Tags = strings.Split(tags, ",")
		}
		rec.Vector = decodeFloat32s(blob)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// encodeFloat32s converts a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s converts little-endian bytes back to a float32 slice.
func decodeFloat32s(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
