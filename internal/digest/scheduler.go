package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sidekickd/sidekick/internal/notify"
)

// Scheduler polls once per minute and flushes the queue exactly once per
// day at the configured digest time ("HH:MM" local).
type Scheduler struct {
	queue      *Queue
	recorder   Recorder
	notifier   notify.Notifier
	digestTime func() string

	lastFired string // date key, "2006-01-02"
	now       func() time.Time
}

// NewScheduler creates a scheduler. digestTime is read on every poll so a
// policy reload takes effect without a restart. recorder and notifier may
// be nil.
func NewScheduler(queue *Queue, recorder Recorder, notifier notify.Notifier, digestTime func() string) *Scheduler {
	return &Scheduler{
		queue:      queue,
		recorder:   recorder,
		notifier:   notifier,
		digestTime: digestTime,
		now:        time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll fires the daily flush when the current minute matches the digest
// time and it has not fired today.
func (s *Scheduler) Poll(ctx context.Context) {
	target := s.digestTime()
	if target == "" {
		return
	}
	now := s.now()
	if now.Format("15:04") != target {
		return
	}
	dateKey := now.Format("2006-01-02")
	if s.lastFired == dateKey {
		return
	}
	s.lastFired = dateKey
	s.deliver(ctx, now)
}

func (s *Scheduler) deliver(ctx context.Context, now time.Time) {
	items := s.queue.Flush()
	if len(items) == 0 {
		return
	}
	if s.recorder != nil {
		if err := s.recorder.RecordDelivery(now, items); err != nil {
			slog.Warn("Recording digest delivery failed", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, "Daily digest", FormatBatch(items)); err != nil {
			slog.Warn("Digest delivery failed", "error", err)
		}
	}
	slog.Info("Digest delivered", "items", len(items))
}

// FormatBatch renders a delivered batch as readable text.
func FormatBatch(items []*Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d item(s):\n", len(items))
	for _, item := range items {
		fmt.Fprintf(&b, "- %s", item.Title)
		if item.Summary != "" && item.Summary != item.Title {
			fmt.Fprintf(&b, ": %s", item.Summary)
		}
		if item.RecommendedAction != "" {
			fmt.Fprintf(&b, " (suggested: %s)", item.RecommendedAction)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
