package memory

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// JSONLBackend is the append-only line-log fallback used when the sqlite
// database cannot be opened. A touched record is re-appended in full; on
// load the last line per id wins.
type JSONLBackend struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenJSONLBackend opens (or creates) the append-only log.
func OpenJSONLBackend(path string) (*JSONLBackend, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open memory log: %w", err)
	}
	return &JSONLBackend{path: path, file: f}, nil
}

// Append writes a record as one JSON line.
func (b *JSONLBackend) Append(rec *Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLine(rec)
}

// TouchLastUsed re-appends the full record with the new timestamp. Needs
// the current record state; the store holds it, so read back from the log.
func (b *JSONLBackend) TouchLastUsed(id string, t time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.loadLocked()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.ID == id {
			touched := t
			rec.LastUsedAt = &touched
			return b.writeLine(rec)
		}
	}
	return fmt.Errorf("record not found: %s", id)
}

// LoadAll reads the log; the last occurrence of each id wins.
func (b *JSONLBackend) LoadAll() ([]*Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loadLocked()
}

func (b *JSONLBackend) loadLocked() ([]*Record, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	byID := make(map[string]int)
	var out []*Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("Skipping corrupt memory log line", "error", err)
			continue
		}
		if i, seen := byID[rec.ID]; seen {
			out[i] = &rec
			continue
		}
		byID[rec.ID] = len(out)
		out = append(out, &rec)
	}
	return out, scanner.Err()
}

func (b *JSONLBackend) writeLine(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return err
	}
	return b.file.Sync()
}

// Close closes the log file.
func (b *JSONLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}

// OpenBackend opens the sqlite backend, degrading to the JSONL log when the
// database is unavailable.
func OpenBackend(dbPath, logPath string) (Backend, error) {
	sb, err := OpenSQLiteBackend(dbPath)
	if err == nil {
		return sb, nil
	}
	slog.Warn("Memory database unavailable, falling back to append-only log", "db", dbPath, "error", err)
	return OpenJSONLBackend(logPath)
}
