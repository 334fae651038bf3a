// Package memory persists typed, tagged, prioritized text records and
// answers filtered similarity queries.
package memory

import (
	"strings"
	"time"
)

// Type classifies a memory record.
type Type string

// Record types.
const (
	TypePreference     Type = "preference"
	TypeFact           Type = "fact"
	TypeWorkflow       Type = "workflow"
	TypeConstraint     Type = "constraint"
	TypeWarning        Type = "warning"
	TypeConversation   Type = "conversation"
	TypeAgentAction    Type = "agent_action"
	TypeCredentialHint Type = "credential_hint"
	TypeSystem         Type = "system"
)

// AllTypes lists every record type, used for unfiltered retrieval.
var AllTypes = []Type{
	TypePreference, TypeFact, TypeWorkflow, TypeConstraint, TypeWarning,
	TypeConversation, TypeAgentAction, TypeCredentialHint, TypeSystem,
}

// FactTypes restricts retrieval to stable knowledge ("facts only" mode).
var FactTypes = []Type{TypeFact, TypePreference, TypeConstraint}

// Source records where a memory came from.
type Source string

// Record sources.
const (
	SourceUser       Source = "user"
	SourceLearned    Source = "learned"
	SourceSystem     Source = "system"
	SourceCorrection Source = "correction"
)

// Record is a single memory. Append-only: never deleted or mutated after
// storage except LastUsedAt, which is touched on retrieval.
type Record struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Type       Type       `json:"type"`
	Priority   int        `json:"priority"` // [1,5], 3 is neutral
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Source     Source     `json:"source"`
	Tags       []string   `json:"tags,omitempty"`
	Vector     []float32  `json:"vector,omitempty"`
}

// HasAllTags reports whether the record carries every given tag.
func (r *Record) HasAllTags(tags []string) bool {
	for _, want := range tags {
		found := false
		for _, have := range r.Tags {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Filters restricts a retrieval query. Zero values mean "no restriction".
type Filters struct {
	Recency     time.Duration // only records created within this window
	MinPriority int
	Types       []Type
	Sources     []Source
	Tags        []string // record must carry all of these
}

func (f Filters) allows(r *Record, now time.Time) bool {
	if f.Recency > 0 && now.Sub(r.CreatedAt) > f.Recency {
		return false
	}
	if r.Priority < f.MinPriority {
		return false
	}
	if len(f.Types) > 0 && !typeIn(f.Types, r.Type) {
		return false
	}
	if len(f.Sources) > 0 && !sourceIn(f.Sources, r.Source) {
		return false
	}
	if len(f.Tags) > 0 && !r.HasAllTags(f.Tags) {
		return false
	}
	return true
}

func typeIn(list []Type, t Type) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func sourceIn(list []Source, s Source) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// BuildRetrievalQuery concatenates the goal with the last action and result
// into a retrieval query. Used by the agent loop's observe phase.
func BuildRetrievalQuery(goal, lastAction, lastResult string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{goal, lastAction, lastResult} {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// FormatForPrompt renders records as a bulleted, type-tagged block for
// prompt injection. Returns the empty string when there is nothing to
// inject; callers must then omit the memory section entirely.
func FormatForPrompt(records []*Record) string {
	if len(records) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, r := range records {
		sb.WriteString("- [")
		sb.WriteString(string(r.Type))
		sb.WriteString("] ")
		sb.WriteString(r.Text)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
