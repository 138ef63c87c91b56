package services

import "strings"

// DefaultCannotAttendPhrases covers the unavailability wordings seen in the
// group polls this service ingests. Matching is case-insensitive substring so
// "I cannot play this week" and "Can't play" both count.
var DefaultCannotAttendPhrases = []string{
	"cannot play",
	"can't play",
	"cant play",
	"cannot attend",
	"not available",
	"unavailable",
	"skip this week",
	"out this week",
}

// NormalizeSelection trims labels and drops duplicates and empties, keeping
// first-occurrence order.
func NormalizeSelection(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, label := range raw {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

// IsCannotAttend reports whether a single option label marks the voter as
// unavailable.
func IsCannotAttend(label string, phrases []string) bool {
	lowered := strings.ToLower(label)
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// ResolveSelection normalizes the raw selection and applies the
// unavailability override: a selection that mixes cannot-attend labels with
// other labels keeps only the cannot-attend ones. A voter who marks
// unavailability without unchecking earlier picks is recorded as unavailable,
// not as partially attending. Pure cannot-attend and pure date selections
// pass through unchanged.
func ResolveSelection(raw []string, phrases []string) (resolved []string, overridden bool) {
	normalized := NormalizeSelection(raw)
	if len(phrases) == 0 {
		phrases = DefaultCannotAttendPhrases
	}

	unavailable := make([]string, 0, len(normalized))
	for _, label := range normalized {
		if IsCannotAttend(label, phrases) {
			unavailable = append(unavailable, label)
		}
	}
	if len(unavailable) == 0 || len(unavailable) == len(normalized) {
		return normalized, false
	}
	return unavailable, true
}
