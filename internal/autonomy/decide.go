package autonomy

import (
	"math"
	"time"
)

// Signal carries the multi-dimensional urgency inputs for one proposal.
type Signal struct {
	Impact          float64 // contribution clamped to [0,4]
	TimeSensitivity float64 // contribution clamped to [0,3]
	Confidence      float64 // contribution clamped to [0,2]
	DisruptionCost  float64 // (1-cost) contribution clamped to [0,1]
	Relevance       float64 // curiosity relevance score in [0,1]
}

// Risk carries the tool risk inputs for one proposal.
type Risk struct {
	ToolRisk string // "low", "medium", "high"
	Category string // derived tool category, e.g. "system_exec"
}

// Request is one proposed action to be gated.
type Request struct {
	Domain        string
	Trigger       string
	Signal        Signal
	Risk          Risk
	RequiresWrite bool
	UserInitiated bool
}

// Decision is the outcome of a policy evaluation. It is a value, never
// persisted; only the budget spend recorded by the caller survives it.
type Decision struct {
	Outcome Outcome
	Domain  string
	Trigger string
	Urgency float64
	Reason  string
	Budget  Snapshot
}

// Engine evaluates proposals against the loaded policy document and a
// shared budget tracker.
type Engine struct {
	doc    *Document
	budget *BudgetTracker
	now    func() time.Time
}

// NewEngine creates an engine over a loaded document.
func NewEngine(doc *Document) *Engine {
	if doc == nil {
		doc = DefaultDocument()
	}
	return &Engine{
		doc:    doc,
		budget: NewBudgetTracker(doc.Budgets),
		now:    time.Now,
	}
}

// SetClock overrides the wall clock for the engine and its budget tracker.
// Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
	e.budget.SetClock(now)
}

// Document returns the loaded policy document.
func (e *Engine) Document() *Document { return e.doc }

// Budget returns the shared budget tracker.
func (e *Engine) Budget() *BudgetTracker { return e.budget }

// Decide evaluates a request against the current budget snapshot and clock.
func (e *Engine) Decide(req Request) Decision {
	return DecideAt(e.doc, req, e.budget.SnapshotBudget(), e.now())
}

// DecideAt is the pure decision function: deterministic given the document,
// request, budget snapshot, and time. It never mutates budget state.
func DecideAt(doc *Document, req Request, snap Snapshot, now time.Time) Decision {
	// 1. Normalize domain and trigger.
	domain := req.Domain
	dp, ok := doc.Domains[domain]
	if !ok {
		domain = doc.DefaultDomain
		dp = doc.Domains[domain]
	}
	trigger := req.Trigger
	tp := doc.Triggers[trigger] // zero value: base urgency 0, routine

	d := Decision{
		Domain:  domain,
		Trigger: trigger,
		Budget:  snap,
	}

	// 2. Unlisted triggers are rejected unless explicitly user-initiated.
	if !req.UserInitiated && !containsString(dp.AllowedTriggers, trigger) {
		d.Outcome = OutcomeDoNothing
		d.Reason = "trigger_not_allowed"
		return d
	}

	// 3. Urgency: bounded linear sum, one-decimal rounding.
	d.Urgency = urgency(tp.BaseUrgency, req.Signal)

	// 4. Band default outcome.
	d.Outcome = bandOutcome(doc.Bands, d.Urgency)
	d.Reason = "band_default"

	// 5. Domains that may not execute tools are downgraded.
	if impliesExecution(d.Outcome) && dp.AutonomyLevel != LevelAct {
		if d.Urgency >= doc.NotifyThreshold {
			d.Outcome = OutcomeNotify
			d.Reason = "autonomy_level_downgrade_notify"
		} else {
			d.Outcome = OutcomeLogOnly
			d.Reason = "autonomy_level_downgrade_log"
		}
	}

	// 6. Curiosity-class triggers never interrupt.
	if tp.Class == ClassCuriosity {
		cur := doc.Curiosity
		switch {
		case !cur.Enabled:
			d.Outcome = OutcomeDoNothing
			d.Reason = "curiosity_disabled"
			return d
		case req.Signal.Relevance < cur.MinRelevance:
			d.Outcome = OutcomeLogOnly
			d.Reason = "curiosity_low_relevance"
			return d
		case !snap.CanSpend(KindCuriosityMinutes, 1) || !snap.CanSpend(KindFinding, 1):
			d.Outcome = OutcomeLogOnly
			d.Reason = "curiosity_budget_exhausted"
			return d
		case req.UserInitiated:
			d.Outcome = OutcomeActThenReport
			d.Reason = "curiosity_user_initiated"
		case doc.QuietHours.Contains(now):
			d.Outcome = OutcomeLogOnly
			d.Reason = "curiosity_quiet_hours"
			return d
		default:
			d.Outcome = OutcomeNotify
			d.Reason = "curiosity_notify"
		}
	}

	// 7. Write-approval and high-risk rules override everything above.
	if (req.RequiresWrite && doc.RequireApprovalForWrites) ||
		req.Risk.ToolRisk == "high" ||
		containsString(doc.HighRiskCategories, req.Risk.Category) {
		d.Outcome = OutcomeAskPermission
		d.Reason = "approval_required"
	}

	// 8. Notifications degrade silently when their budget is exhausted.
	if d.Outcome == OutcomeNotify && !snap.CanSpend(KindNotification, 1) {
		d.Outcome = OutcomeLogOnly
		d.Reason = "notification_budget_exhausted"
	}

	// 9. Quiet hours suppress interrupts and notifications.
	if doc.QuietHours.Contains(now) {
		switch d.Outcome {
		case OutcomeNotify:
			d.Outcome = OutcomeLogOnly
			d.Reason = "quiet_hours"
		case OutcomeAskPermission:
			if !req.UserInitiated {
				d.Outcome = OutcomeLogOnly
				d.Reason = "quiet_hours"
			}
		}
	}

	return d
}

// RecordOutcome spends the budget counter matching an outcome that the
// caller actually executed. The decide path never spends.
func (e *Engine) RecordOutcome(d Decision) {
	switch d.Outcome {
	case OutcomeAct, OutcomeActThenReport:
		e.budget.Spend(KindAction, 1)
	case OutcomeNotify:
		e.budget.Spend(KindNotification, 1)
	case OutcomeAskPermission:
		e.budget.Spend(KindInterrupt, 1)
	}
	if tp, ok := e.doc.Triggers[d.Trigger]; ok && tp.Class == ClassCuriosity {
		switch d.Outcome {
		case OutcomeAct, OutcomeActThenReport, OutcomeNotify:
			e.budget.Spend(KindCuriosityMinutes, 1)
			e.budget.Spend(KindFinding, 1)
		}
	}
}

// RecordConfirmedAction spends one action for a permission-gated call
// that the user approved and the caller then executed. The interrupt was
// already spent when the permission was requested.
func (e *Engine) RecordConfirmedAction() {
	e.budget.Spend(KindAction, 1)
}

// RecordMemoryWrites spends the memory-write counter.
func (e *Engine) RecordMemoryWrites(n int) {
	e.budget.Spend(KindMemoryWrite, n)
}

// urgency computes the bounded linear sum, rounded to one decimal.
func urgency(base float64, s Signal) float64 {
	u := base +
		clampF(s.Impact, 0, 4) +
		clampF(s.TimeSensitivity, 0, 3) +
		clampF(s.Confidence, 0, 2) +
		clampF(1-s.DisruptionCost, 0, 1)
	u = clampF(u, 0, 10)
	return math.Round(u*10) / 10
}

func bandOutcome(b BandConfig, u float64) Outcome {
	switch {
	case u <= b.LowMax:
		return b.Low
	case u <= b.MediumMax:
		return b.Medium
	default:
		return b.High
	}
}

// impliesExecution reports whether an outcome would run a tool.
func impliesExecution(o Outcome) bool {
	return o == OutcomeAct || o == OutcomeActThenReport
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
