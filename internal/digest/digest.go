// Package digest accumulates "found something, didn't interrupt" items
// for rate-limited, time-scheduled delivery.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sidekickd/sidekick/internal/notify"
)

// MaxLinks bounds the links carried by one item.
const MaxLinks = 5

// Defaults for log rotation and passive notification pacing.
const (
	DefaultMaxLogBytes    = 1 << 20
	DefaultMaxArchives    = 7
	DefaultNotifyInterval = 15 * time.Minute
)

// Item is one digest entry. Created on enqueue, removed from the live
// queue on flush, retained in the rotated log.
type Item struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	Domain            string    `json:"domain,omitempty"`
	Trigger           string    `json:"trigger,omitempty"`
	Title             string    `json:"title"`
	Summary           string    `json:"summary,omitempty"`
	Evidence          string    `json:"evidence,omitempty"`
	Links             []string  `json:"links,omitempty"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
}

// Recorder persists delivered batches.
type Recorder interface {
	RecordDelivery(deliveredAt time.Time, items []*Item) error
}

// Queue is the live digest queue plus its append-only rotated log.
// Safe for concurrent use.
type Queue struct {
	mu sync.Mutex

	items   []*Item
	logPath string

	maxLogBytes int64
	maxArchives int

	notifier       notify.Notifier
	notifyInterval time.Duration
	lastNotify     time.Time
	inQuietHours   func(time.Time) bool

	now func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithNotifier sets the passive notification channel.
func WithNotifier(n notify.Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// WithQuietHours sets the suppression window predicate.
func WithQuietHours(contains func(time.Time) bool) Option {
	return func(q *Queue) { q.inQuietHours = contains }
}

// WithRotation overrides the log size threshold and archive retention.
func WithRotation(maxBytes int64, maxArchives int) Option {
	return func(q *Queue) {
		q.maxLogBytes = maxBytes
		q.maxArchives = maxArchives
	}
}

// WithNotifyInterval overrides the minimum gap between passive
// notifications.
func WithNotifyInterval(d time.Duration) Option {
	return func(q *Queue) { q.notifyInterval = d }
}

// NewQueue creates a queue logging to logPath.
func NewQueue(logPath string, opts ...Option) *Queue {
	q := &Queue{
		logPath:        logPath,
		maxLogBytes:    DefaultMaxLogBytes,
		maxArchives:    DefaultMaxArchives,
		notifyInterval: DefaultNotifyInterval,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetClock overrides the wall clock. Test hook.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

// Len returns the live queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueue fills in defaults, appends the item to the live queue and the
// log, rotates the log when oversized, and fires a rate-limited passive
// notification outside quiet hours.
func (q *Queue) Enqueue(ctx context.Context, item Item) (*Item, error) {
	q.mu.Lock()
	now := q.now()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.Title == "" {
		item.Title = item.Summary
	}
	if len(item.Links) > MaxLinks {
		item.Links = item.Links[:MaxLinks]
	}

	q.items = append(q.items, &item)
	if err := q.appendLogLocked(&item); err != nil {
		slog.Warn("Digest log append failed", "error", err)
	}
	q.rotateLocked()

	shouldNotify := q.notifier != nil &&
		now.Sub(q.lastNotify) >= q.notifyInterval &&
		(q.inQuietHours == nil || !q.inQuietHours(now))
	if shouldNotify {
		q.lastNotify = now
	}
	depth := len(q.items)
	notifier := q.notifier
	q.mu.Unlock()

	if shouldNotify {
		msg := fmt.Sprintf("%s (%d item(s) waiting in your digest)", item.Title, depth)
		if err := notifier.Notify(ctx, "Digest", msg); err != nil {
			slog.Warn("Digest notification failed", "error", err)
		}
	}
	return &item, nil
}

// Items returns a snapshot of the live queue without draining it.
func (q *Queue) Items() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Item(nil), q.items...)
}

// Flush atomically drains and returns the live queue in enqueue order.
func (q *Queue) Flush() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue) appendLogLocked(item *Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(q.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// rotateLocked archives the log when it exceeds the size threshold and
// prunes archives beyond the retention count.
func (q *Queue) rotateLocked() {
	info, err := os.Stat(q.logPath)
	if err != nil || info.Size() <= q.maxLogBytes {
		return
	}

	archive := fmt.Sprintf("%s.%s", q.logPath, q.now().Format("20060102-150405.000"))
	if err := os.Rename(q.logPath, archive); err != nil {
		slog.Warn("Digest log rotation failed", "error", err)
		return
	}

	matches, err := filepath.Glob(q.logPath + ".*")
	if err != nil {
		return
	}
	sort.Strings(matches)
	for len(matches) > q.maxArchives {
		if err := os.Remove(matches[0]); err != nil {
			slog.Warn("Digest archive prune failed", "path", matches[0], "error", err)
		}
		matches = matches[1:]
	}
}
