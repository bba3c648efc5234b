package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Section names one of the four tiers of a report.
type Section string

const (
	SectionScorecard   Section = "scorecard"
	SectionGapAnalysis Section = "gap_analysis"
	SectionRoadmap     Section = "roadmap"
	SectionDrafts      Section = "drafts"
)

// maxHeaderTitle bounds the title part of a header line.
const maxHeaderTitle = 80

type headerAlias struct {
	section Section
	re      *regexp.Regexp
}

// headerAliases are matched against the start of each line once markdown
// decoration has been removed.
var headerAliases = []headerAlias{
	{SectionScorecard, regexp.MustCompile(`(?i)^(?:tier\s*1\b|citation\s+audit\s+scorecard\b|scorecard\b)`)},
	{SectionGapAnalysis, regexp.MustCompile(`(?i)^(?:tier\s*2\b|competitive\s+gap\b|gap\s+analysis\b)`)},
	{SectionRoadmap, regexp.MustCompile(`(?i)^(?:tier\s*3\b|intervention\s+roadmap\b|roadmap\b|recommendations\b|interventions\b)`)},
	{SectionDrafts, regexp.MustCompile(`(?i)^(?:tier\s*4\b|drafts\b|rewrites\b|templates\b)`)},
}

// headerWords are the words a header title may consist of besides numbers
// and punctuation. A line that starts with an alias but goes on with other
// words is prose.
var headerWords = map[string]bool{
	"tier": true, "citation": true, "audit": true, "scorecard": true,
	"competitive": true, "gap": true, "analysis": true,
	"intervention": true, "interventions": true, "roadmap": true, "recommendations": true,
	"drafts": true, "rewrites": true, "templates": true,
	"content": true, "strategic": true, "section": true, "and": true,
}

// trailingNote matches a parenthetical at the end of a title, as in
// "Intervention Roadmap (90 days)".
var trailingNote = regexp.MustCompile(`\s*\([^()\n]*\)\s*$`)

// Segments is a report split into its tiers.
type Segments struct {
	// Preamble is the text before the first recognized header.
	Preamble string
	// Sections holds the body of every section whose header was found.
	Sections map[Section]string
}

// Section returns the body of name and whether its header was found.
func (s Segments) Section(name Section) (string, bool) {
	body, ok := s.Sections[name]
	return body, ok
}

type header struct {
	section   Section
	lineStart int
	bodyStart int
}

// Segment splits text into sections. A section runs from its header to the
// next header that claims a different section not seen before; a repeated
// header of an already-claimed section stays in the running body.
func Segment(text string) Segments {
	segs := Segments{Sections: make(map[Section]string, 4)}

	claimed := make(map[Section]bool, 4)
	var active *header
	for _, h := range findHeaders(text) {
		if claimed[h.section] {
			continue
		}
		claimed[h.section] = true
		if active == nil {
			segs.Preamble = strings.TrimSpace(text[:h.lineStart])
		} else {
			segs.Sections[active.section] = sectionBody(text[active.bodyStart:h.lineStart])
		}
		active = &h
	}

	if active == nil {
		segs.Preamble = strings.TrimSpace(text)
		return segs
	}
	segs.Sections[active.section] = sectionBody(text[active.bodyStart:])
	return segs
}

func findHeaders(text string) []header {
	var headers []header
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		start := offset
		offset += len(line)

		content := strings.TrimRight(line, "\n")
		stripped := strings.TrimLeft(content, " \t#>*_")
		lead := len(content) - len(stripped)

		title := stripped
		bodyStart := offset
		if c := strings.IndexByte(stripped, ':'); c >= 0 {
			title = stripped[:c]
			// "Tier 2: Competitive Gap Analysis" names the section twice;
			// only a remainder that is not itself a header is content.
			if !isHeader(strings.TrimLeft(stripped[c+1:], " \t*_")) {
				bodyStart = start + lead + c + 1
			}
		}
		section, ok := headerSection(title)
		if !ok {
			continue
		}
		headers = append(headers, header{
			section:   section,
			lineStart: start,
			bodyStart: bodyStart,
		})
	}
	return headers
}

// headerSection reports the section a title names. The title must start
// with an alias and contain nothing but header words, numbers and
// punctuation.
func headerSection(title string) (Section, bool) {
	title = strings.TrimSpace(strings.TrimRight(title, " \t*_#"))
	if title == "" || utf8.RuneCountInString(title) > maxHeaderTitle {
		return "", false
	}
	for _, alias := range headerAliases {
		if !alias.re.MatchString(title) {
			continue
		}
		if !onlyHeaderWords(trailingNote.ReplaceAllString(title, "")) {
			return "", false
		}
		return alias.section, true
	}
	return "", false
}

func onlyHeaderWords(s string) bool {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if isNumber(w) {
			continue
		}
		if !headerWords[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

func isNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func isHeader(s string) bool {
	_, ok := headerSection(s)
	return ok
}

func sectionBody(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, " \t*_"))
}
