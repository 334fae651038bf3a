package agent

import (
	"regexp"
	"strings"
)

// Classifier decides whether free text is a correction of prior behavior
// or a policy denial. The recording pipeline depends only on this
// interface, so the heuristics can be swapped without touching it.
type Classifier interface {
	IsCorrection(text string) bool
	IsDenial(text string) bool
}

// HeuristicClassifier is the default Classifier: prefix and keyword
// matching for corrections, a pattern over error text for denials.
type HeuristicClassifier struct{}

func (HeuristicClassifier) IsCorrection(text string) bool { return IsCorrection(text) }
func (HeuristicClassifier) IsDenial(text string) bool     { return IsDenial(text) }

// correctionPrefixes mark a user response as correcting the assistant.
var correctionPrefixes = []string{
	"no,", "actually,", "that's wrong", "i said", "i meant", "i asked",
}

// IsCorrection reports whether a user response corrects prior behavior.
func IsCorrection(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, prefix := range correctionPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return strings.Contains(lower, "instead")
}

// denialPattern matches error text produced by security denials,
// allow-list rejections, and confirmation gates. Such errors are worth
// remembering as constraints so the same call is not retried blindly.
var denialPattern = regexp.MustCompile(`(?i)(denied|not allowed|blocked|whitelist|allow-?list|requires? (explicit )?confirmation|permission)`)

// IsDenial reports whether error text describes a policy or security
// rejection rather than an ordinary failure.
func IsDenial(text string) bool {
	return denialPattern.MatchString(text)
}
