package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decision kinds the provider may return. Anything else degrades to
// ask_user.
const (
	DecisionToolCall = "tool_call"
	DecisionAskUser  = "ask_user"
	DecisionStop     = "stop"
)

// Decision is the structured reply expected from the decision provider.
type Decision struct {
	Type      string         `json:"decision"`
	Tool      string         `json:"tool,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Question  string         `json:"question,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Success   bool           `json:"success,omitempty"`
	Result    string         `json:"result,omitempty"`
}

// ExtractJSONObject returns the first balanced {...} substring, tracking
// string literals and escapes so braces inside values do not miscount.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// ParseDecision extracts and parses the provider reply. It fails closed:
// any parse failure or unknown decision tag becomes a synthetic ask_user
// decision explaining the problem.
func ParseDecision(raw string) *Decision {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return failClosed("the reply contained no JSON object")
	}
	var dec Decision
	if err := json.Unmarshal([]byte(obj), &dec); err != nil {
		return failClosed(fmt.Sprintf("the reply could not be parsed: %v", err))
	}
	switch dec.Type {
	case DecisionToolCall, DecisionAskUser, DecisionStop:
		return &dec
	default:
		return failClosed(fmt.Sprintf("unrecognized decision %q", dec.Type))
	}
}

func failClosed(reason string) *Decision {
	return &Decision{
		Type:     DecisionAskUser,
		Question: fmt.Sprintf("I could not produce a valid next step (%s). How would you like to proceed?", reason),
	}
}

// affirmativePhrases confirm a pending tool call without another provider
// round-trip.
var affirmativePhrases = []string{"go ahead"}

var affirmativeWords = map[string]bool{
	"yes": true, "confirm": true, "ok": true, "okay": true, "proceed": true,
}

// IsAffirmative reports whether a user response confirms a pending call.
func IsAffirmative(s string) bool {
	lower := strings.ToLower(s)
	for _, phrase := range affirmativePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '\n' || r == '\t'
	}) {
		if affirmativeWords[word] {
			return true
		}
	}
	return false
}
