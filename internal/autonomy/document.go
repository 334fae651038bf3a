// Package autonomy decides whether a proposed action may run, notify,
// require approval, or be suppressed. The decision function is pure; budget
// spend is recorded separately by the caller.
package autonomy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Outcome is the result class of a policy decision.
type Outcome string

// Outcomes ordered roughly by decreasing autonomy.
const (
	OutcomeAct           Outcome = "act"
	OutcomeActThenReport Outcome = "act_then_report"
	OutcomeNotify        Outcome = "notify"
	OutcomeAskPermission Outcome = "ask_permission"
	OutcomeLogOnly       Outcome = "log_only"
	OutcomeDoNothing     Outcome = "do_nothing"
)

// AutonomyLevel controls whether a domain may execute tools on its own.
const (
	LevelObserve = "observe" // never executes, may log
	LevelSuggest = "suggest" // may notify, never executes
	LevelAct     = "act"     // may execute tools
)

// TriggerClass separates routine triggers from curiosity-driven ones.
const (
	ClassRoutine   = "routine"
	ClassCuriosity = "curiosity"
)

// DomainPolicy configures one decision domain.
type DomainPolicy struct {
	AllowedTriggers []string `json:"allowedTriggers"`
	AutonomyLevel   string   `json:"autonomyLevel"`
}

// TriggerPolicy configures one trigger.
type TriggerPolicy struct {
	BaseUrgency float64 `json:"baseUrgency"`
	Class       string  `json:"class,omitempty"`
}

// BandConfig maps urgency to a default outcome per band.
type BandConfig struct {
	LowMax    float64 `json:"lowMax"`    // urgency <= LowMax → low band
	MediumMax float64 `json:"mediumMax"` // urgency <= MediumMax → medium band
	Low       Outcome `json:"low"`
	Medium    Outcome `json:"medium"`
	High      Outcome `json:"high"`
}

// CuriosityPolicy configures curiosity-class triggers.
type CuriosityPolicy struct {
	Enabled       bool    `json:"enabled"`
	MinRelevance  float64 `json:"minRelevance"`
	DailyMinutes  int     `json:"dailyMinutes"`
	DailyFindings int     `json:"dailyFindings"`
}

// BudgetConfig holds per-day and per-hour caps keyed by spend kind.
// Curiosity minutes and findings are day-only.
type BudgetConfig struct {
	Daily  map[Kind]int `json:"daily"`
	Hourly map[Kind]int `json:"hourly"`
}

// QuietHours is a local wall-clock window during which interrupts and
// notifications are suppressed. Start/End are "HH:MM"; the window may wrap
// past midnight.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether t falls inside the window.
func (q QuietHours) Contains(t time.Time) bool {
	start, okS := parseClock(q.Start)
	end, okE := parseClock(q.End)
	if !okS || !okE || start == end {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if start < end {
		return cur >= start && cur < end
	}
	// Wraps midnight, e.g. 22:00–07:00.
	return cur >= start || cur < end
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// Document is the versioned policy document loaded once at startup.
type Document struct {
	Version                  string                   `json:"version"`
	DefaultDomain            string                   `json:"defaultDomain"`
	Domains                  map[string]DomainPolicy  `json:"domains"`
	Triggers                 map[string]TriggerPolicy `json:"triggers"`
	Bands                    BandConfig               `json:"bands"`
	NotifyThreshold          float64                  `json:"notifyThreshold"`
	Curiosity                CuriosityPolicy          `json:"curiosity"`
	Budgets                  BudgetConfig             `json:"budgets"`
	QuietHours               QuietHours               `json:"quietHours"`
	RequireApprovalForWrites bool                     `json:"requireApprovalForWrites"`
	HighRiskCategories       []string                 `json:"highRiskCategories"`
	DigestTime               string                   `json:"digestTime"`
}

// DefaultDocument returns the built-in policy used when no document is
// configured (and as the development-mode fallback).
func DefaultDocument() *Document {
	return &Document{
		Version:       "1",
		DefaultDomain: "personal_assistant",
		Domains: map[string]DomainPolicy{
			"personal_assistant": {
				AllowedTriggers: []string{"user_request", "followup", "reminder", "discovery"},
				AutonomyLevel:   LevelAct,
			},
			"background": {
				AllowedTriggers: []string{"discovery", "reminder"},
				AutonomyLevel:   LevelSuggest,
			},
		},
		Triggers: map[string]TriggerPolicy{
			"user_request": {BaseUrgency: 4},
			"followup":     {BaseUrgency: 3},
			"reminder":     {BaseUrgency: 3},
			"discovery":    {BaseUrgency: 1, Class: ClassCuriosity},
		},
		Bands: BandConfig{
			LowMax:    3,
			MediumMax: 6,
			Low:       OutcomeLogOnly,
			Medium:    OutcomeNotify,
			High:      OutcomeAct,
		},
		NotifyThreshold: 4,
		Curiosity: CuriosityPolicy{
			Enabled:       true,
			MinRelevance:  0.4,
			DailyMinutes:  30,
			DailyFindings: 5,
		},
		Budgets: BudgetConfig{
			Daily: map[Kind]int{
				KindAction:           100,
				KindNotification:     20,
				KindInterrupt:        5,
				KindMemoryWrite:      200,
				KindCuriosityMinutes: 30,
				KindFinding:          5,
			},
			Hourly: map[Kind]int{
				KindAction:       30,
				KindNotification: 6,
				KindInterrupt:    2,
				KindMemoryWrite:  60,
			},
		},
		QuietHours:               QuietHours{Start: "22:00", End: "07:00"},
		RequireApprovalForWrites: true,
		HighRiskCategories:       []string{"system_exec", "filesystem_write", "document_generation"},
		DigestTime:               "18:00",
	}
}

// LoadDocument reads and validates a policy document. In strict mode a
// validation failure is fatal; otherwise the failure is logged and the
// default document applies.
func LoadDocument(path string, strict bool) (*Document, error) {
	doc, err := readDocument(path)
	if err != nil {
		if strict {
			return nil, err
		}
		slog.Warn("Policy document invalid, using defaults", "path", path, "error", err)
		return DefaultDocument(), nil
	}
	return doc, nil
}

func readDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("policy document not found: %s", path)
		}
		return nil, fmt.Errorf("read policy document: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy document: %w", err)
	}
	if err := validate(&doc); err != nil {
		return nil, fmt.Errorf("validate policy document: %w", err)
	}
	return &doc, nil
}

// validate performs minimal-key schema validation.
func validate(doc *Document) error {
	if doc.Version == "" {
		return fmt.Errorf("missing version")
	}
	if len(doc.Domains) == 0 {
		return fmt.Errorf("no domains configured")
	}
	if doc.DefaultDomain == "" {
		return fmt.Errorf("missing defaultDomain")
	}
	if _, ok := doc.Domains[doc.DefaultDomain]; !ok {
		return fmt.Errorf("defaultDomain %q not in domains", doc.DefaultDomain)
	}
	for name, d := range doc.Domains {
		switch d.AutonomyLevel {
		case LevelObserve, LevelSuggest, LevelAct:
		default:
			return fmt.Errorf("domain %q: invalid autonomyLevel %q", name, d.AutonomyLevel)
		}
	}
	if doc.Bands.LowMax <= 0 || doc.Bands.MediumMax <= doc.Bands.LowMax {
		return fmt.Errorf("band edges must satisfy 0 < lowMax < mediumMax")
	}
	for _, o := range []Outcome{doc.Bands.Low, doc.Bands.Medium, doc.Bands.High} {
		if !validOutcome(o) {
			return fmt.Errorf("invalid band outcome %q", o)
		}
	}
	return nil
}

func validOutcome(o Outcome) bool {
	switch o {
	case OutcomeAct, OutcomeActThenReport, OutcomeNotify,
		OutcomeAskPermission, OutcomeLogOnly, OutcomeDoNothing:
		return true
	}
	return false
}
