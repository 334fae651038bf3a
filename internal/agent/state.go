// Package agent implements the Observe, Decide, Act, Record control loop.
package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/sidekickd/sidekick/internal/memory"
)

// Status is the lifecycle state of one run.
type Status string

const (
	StatusRunning     Status = "RUNNING"
	StatusSuccess     Status = "SUCCESS"
	StatusFailed      Status = "FAILED"
	StatusWaitingUser Status = "WAITING_USER"
	StatusStepLimit   Status = "STEP_LIMIT"
)

// Step limits. A request above the hard ceiling is clamped, not rejected.
const (
	DefaultStepLimit = 12
	HardStepLimit    = 25
)

// maxConsecutiveErrors is the error ceiling that fails a run.
const maxConsecutiveErrors = 3

// ErrorEntry records one failed step.
type ErrorEntry struct {
	Step      int       `json:"step"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DecisionSummary is the decision part of a history entry.
type DecisionSummary struct {
	Type      string `json:"type"`
	Tool      string `json:"tool,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// HistoryEntry is one completed step. Immutable once appended.
type HistoryEntry struct {
	Step        int             `json:"step"`
	Timestamp   time.Time       `json:"timestamp"`
	Observation string          `json:"observation"`
	Decision    DecisionSummary `json:"decision"`
	Action      string          `json:"action"`
	Result      string          `json:"result"`
}

// PendingConfirmation holds a gated tool call awaiting the user's go-ahead.
// Tool and Args are kept verbatim so the retry reproduces the identical
// call plus a confirmed flag.
type PendingConfirmation struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Context is the per-step working context of a run.
type Context struct {
	Memories            []*memory.Record     `json:"memories,omitempty"`
	SystemInfo          string               `json:"system_info,omitempty"`
	UserInfo            string               `json:"user_info,omitempty"`
	UserResponse        string               `json:"user_response,omitempty"`
	PendingConfirmation *PendingConfirmation `json:"pending_confirmation,omitempty"`
}

// State is one agent run. Owned by a single loop execution; between
// WAITING_USER pauses it lives in the state cache.
type State struct {
	ID                string         `json:"id"`
	Goal              string         `json:"goal"`
	Status            Status         `json:"status"`
	StepCount         int            `json:"step_count"`
	StepLimit         int            `json:"step_limit"`
	LastAction        string         `json:"last_action,omitempty"`
	LastResult        string         `json:"last_result,omitempty"`
	Errors            []ErrorEntry   `json:"errors,omitempty"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	Context           Context        `json:"current_context"`
	Toolset           []string       `json:"toolset,omitempty"`
	History           []HistoryEntry `json:"history,omitempty"`
	MemoryFilter      memory.Filters `json:"memory_filter,omitempty"`
	Question          string         `json:"question,omitempty"`
	FinalResult       string         `json:"final_result,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// NewState creates a fresh RUNNING state with a clamped step limit.
func NewState(goal string, stepLimit int) *State {
	if stepLimit <= 0 {
		stepLimit = DefaultStepLimit
	}
	if stepLimit > HardStepLimit {
		stepLimit = HardStepLimit
	}
	now := time.Now()
	return &State{
		ID:        uuid.NewString(),
		Goal:      goal,
		Status:    StatusRunning,
		StepLimit: stepLimit,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// recordError appends an error entry and bumps the consecutive counter.
func (s *State) recordError(action, message string, now time.Time) {
	s.Errors = append(s.Errors, ErrorEntry{
		Step:      s.StepCount,
		Action:    action,
		Message:   message,
		Timestamp: now,
	})
	s.ConsecutiveErrors++
}

// lastErrors returns up to n most recent error entries.
func (s *State) lastErrors(n int) []ErrorEntry {
	if len(s.Errors) <= n {
		return s.Errors
	}
	return s.Errors[len(s.Errors)-n:]
}

// lastHistory returns up to n most recent history entries.
func (s *State) lastHistory(n int) []HistoryEntry {
	if len(s.History) <= n {
		return s.History
	}
	return s.History[len(s.History)-n:]
}
