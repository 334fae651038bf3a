package autonomy

import (
	"sync"
	"time"
)

// Kind identifies a spend counter.
type Kind string

// Spend kinds. CuriosityMinutes and Finding are tracked per day only.
const (
	KindAction           Kind = "actions"
	KindNotification     Kind = "notifications"
	KindInterrupt        Kind = "interrupts"
	KindMemoryWrite      Kind = "memory_writes"
	KindCuriosityMinutes Kind = "curiosity_minutes"
	KindFinding          Kind = "findings"
)

// dayOnly reports whether a kind has no hourly window.
func dayOnly(k Kind) bool {
	return k == KindCuriosityMinutes || k == KindFinding
}

// Snapshot is an immutable view of remaining budget. Decisions computed
// against the same snapshot are deterministic.
type Snapshot struct {
	RemainingDay  map[Kind]int
	RemainingHour map[Kind]int
}

// CanSpend reports whether n units of kind fit in both windows.
func (s Snapshot) CanSpend(kind Kind, n int) bool {
	if rem, ok := s.RemainingDay[kind]; ok && rem < n {
		return false
	}
	if dayOnly(kind) {
		return true
	}
	if rem, ok := s.RemainingHour[kind]; ok && rem < n {
		return false
	}
	return true
}

// BudgetTracker maintains per-day and per-hour spend counters with automatic
// rollover when the wall-clock day or hour key changes. Counters never go
// negative. Safe for concurrent use.
type BudgetTracker struct {
	mu      sync.Mutex
	caps    BudgetConfig
	dayKey  string
	hourKey string
	day     map[Kind]int
	hour    map[Kind]int
	now     func() time.Time
}

// NewBudgetTracker creates a tracker with the given caps.
func NewBudgetTracker(caps BudgetConfig) *BudgetTracker {
	return &BudgetTracker{
		caps: caps,
		day:  make(map[Kind]int),
		hour: make(map[Kind]int),
		now:  time.Now,
	}
}

// SetClock overrides the wall clock. Test hook.
func (t *BudgetTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// rollover resets windows whose wall-clock key changed. Caller holds mu.
func (t *BudgetTracker) rollover() {
	n := t.now()
	dk := n.Format("2006-01-02")
	hk := n.Format("2006-01-02-15")
	if dk != t.dayKey {
		t.dayKey = dk
		t.day = make(map[Kind]int)
	}
	if hk != t.hourKey {
		t.hourKey = hk
		t.hour = make(map[Kind]int)
	}
}

// CanSpend reports whether n units of kind fit in both current windows.
func (t *BudgetTracker) CanSpend(kind Kind, n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	if cap, ok := t.caps.Daily[kind]; ok && t.day[kind]+n > cap {
		return false
	}
	if dayOnly(kind) {
		return true
	}
	if cap, ok := t.caps.Hourly[kind]; ok && t.hour[kind]+n > cap {
		return false
	}
	return true
}

// Spend records n units of kind in both windows.
func (t *BudgetTracker) Spend(kind Kind, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()
	t.day[kind] += n
	if !dayOnly(kind) {
		t.hour[kind] += n
	}
}

// SnapshotBudget returns the remaining budget per kind for both windows.
func (t *BudgetTracker) SnapshotBudget() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover()

	snap := Snapshot{
		RemainingDay:  make(map[Kind]int, len(t.caps.Daily)),
		RemainingHour: make(map[Kind]int, len(t.caps.Hourly)),
	}
	for kind, cap := range t.caps.Daily {
		rem := cap - t.day[kind]
		if rem < 0 {
			rem = 0
		}
		snap.RemainingDay[kind] = rem
	}
	for kind, cap := range t.caps.Hourly {
		rem := cap - t.hour[kind]
		if rem < 0 {
			rem = 0
		}
		snap.RemainingHour[kind] = rem
	}
	return snap
}
