package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// canonicalText folds compatibility forms (full-width digits, non-breaking
// spaces, ligatures) to their plain equivalents and unifies line endings.
func canonicalText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var emphasisRe = regexp.MustCompile(`\*{1,3}|__|^#+\s*`)

// stripMarkdown removes emphasis markers and a leading heading marker.
func stripMarkdown(s string) string {
	return strings.TrimSpace(emphasisRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// firstLine returns the first non-empty line of s with markdown removed.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if l := stripMarkdown(line); l != "" {
			return l
		}
	}
	return ""
}

// paragraph returns s up to the first blank line.
func paragraph(s string) string {
	if idx := strings.Index(s, "\n\n"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
