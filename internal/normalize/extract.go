package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Find applies the rule to text. head is the window the loose pattern may
// search; pass "" to disable it.
func (r Rule) Find(text, head string) (int, bool) {
	if m := r.Pattern.FindStringSubmatch(text); m != nil {
		return r.parse(m[1]), true
	}
	if r.Loose != nil && head != "" {
		if m := r.Loose.FindStringSubmatch(head); m != nil {
			return r.parse(m[1]), true
		}
	}
	return 0, false
}

func (r Rule) parse(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil {
		// Only overflow can fail here: the pattern admits a sign and digits.
		if len(digits) > 0 && digits[0] == '-' {
			return r.Range.Min
		}
		return r.Range.Max
	}
	return clamp(n, r.Range.Min, r.Range.Max)
}

// Extract runs every rule over text and returns the values that matched,
// keyed by field. Rules are independent; the first match per rule wins.
func Extract(rules []Rule, text, head string) map[string]int {
	found := make(map[string]int, len(rules))
	for _, r := range rules {
		if v, ok := r.Find(text, head); ok {
			found[r.Field] = v
		}
	}
	return found
}

// head returns the loose-pattern window of text.
func head(text string) string {
	return truncate(text, headWindow)
}

const (
	summaryRunes      = 1000
	firstLineRunes    = 500
	gapSummaryRunes   = 1000
	findingRunes      = 200
	minFindingLen     = 10
	titleRunes        = 100
	titleFallbackLen  = 50
	descriptionRunes  = 300
	rewriteRunes      = 1000
	maxCompetitors    = 10
	maxRecommendation = 15
	maxCompetitorName = 50
)

var summaryLabelRe = regexp.MustCompile(`(?im)^[ \t#>*_]*(?:executive\s+summary|summary|overview)\b[ \t*_]*[:\-–]?[ \t*_]*`)

// extractSummary returns the first labelled summary paragraph found in the
// scopes, in order. ok is false when none was labelled.
func extractSummary(scopes ...string) (string, bool) {
	for _, scope := range scopes {
		for _, loc := range summaryLabelRe.FindAllStringIndex(scope, -1) {
			rest := strings.TrimLeft(scope[loc[1]:], " \t\n")
			if p := paragraph(rest); p != "" {
				return truncate(p, summaryRunes), true
			}
		}
	}
	return "", false
}
