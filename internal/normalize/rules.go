package normalize

import (
	"math"
	"regexp"
)

// Range is the inclusive domain a numeric field is clamped into.
type Range struct {
	Min int
	Max int
}

var (
	percentRange = Range{Min: 0, Max: 100}
	rankRange    = Range{Min: 1, Max: math.MaxInt32}
)

// Rule extracts one labelled integer field.
type Rule struct {
	Field   string
	Pattern *regexp.Regexp
	Range   Range
	// Loose is tried only within the head window of the text, and only when
	// Pattern finds nothing.
	Loose *regexp.Regexp
}

// headWindow is how many leading runes a loose pattern may look at.
const headWindow = 200

// labelled builds the strict pattern: the label, an optional parenthetical
// such as "(0-100)", separators or markdown emphasis, then the integer.
func labelled(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + label + `\b[ \t]*(?:\([^)\n]*\))?[\s:*_=#\-–—]*?(-?\d+)`)
}

func loose(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + keyword + `\b[^\d\n]{0,20}?(-?\d+)`)
}

// Field names shared with the report schema.
const (
	FieldOverallScore      = "overall_score"
	FieldCitationLift      = "citation_lift"
	FieldVisibilityRank    = "visibility_rank"
	FieldContentQuality    = "content_quality"
	FieldMetadataScore     = "metadata_score"
	FieldBrandMentions     = "brand_mentions"
	FieldCitationFrequency = "citation_frequency"
	FieldRelevanceScore    = "relevance_score"
	FieldAuthorityScore    = "authority_score"
)

// headlineRules are searched over the whole text. A miss is filled per field.
var headlineRules = []Rule{
	{
		Field:   FieldOverallScore,
		Pattern: labelled(`overall\s+(?:visibility\s+)?score`),
		Range:   percentRange,
		Loose:   loose(`score`),
	},
	{
		Field:   FieldCitationLift,
		Pattern: labelled(`citation\s+lift`),
		Range:   percentRange,
		Loose:   loose(`lift`),
	},
	{
		Field:   FieldVisibilityRank,
		Pattern: labelled(`visibility\s+rank(?:ing)?`),
		Range:   rankRange,
		Loose:   loose(`rank(?:ed|ing)?`),
	},
}

// metricRules are searched over the scorecard section. The group is
// all-or-nothing: if none match, every fallback metric is synthesized.
var metricRules = []Rule{
	{Field: FieldContentQuality, Pattern: labelled(`content\s+quality(?:\s+score)?`), Range: percentRange},
	{Field: FieldMetadataScore, Pattern: labelled(`meta\s?data\s+score`), Range: percentRange},
	{Field: FieldBrandMentions, Pattern: labelled(`brand\s+mentions?(?:\s+score)?`), Range: percentRange},
	{Field: FieldCitationFrequency, Pattern: labelled(`citation\s+frequency(?:\s+score)?`), Range: percentRange},
	{Field: FieldRelevanceScore, Pattern: labelled(`relevance\s+score`), Range: percentRange},
	{Field: FieldAuthorityScore, Pattern: labelled(`authority\s+score`), Range: percentRange},
}
