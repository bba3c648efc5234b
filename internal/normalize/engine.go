// Package normalize converts a language model's visibility audit, free text
// or a JSON object, into a complete model.Report. It is pure: no I/O, no
// shared mutable state, and values it cannot extract are synthesized
// deterministically from the audited URL.
package normalize

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/aeo-cli/internal/model"
)

// DefaultPreviewLength is the default number of runes of the raw payload
// kept in Report.RawResponse.
const DefaultPreviewLength = 1000

// Engine normalizes model output. The zero value is not usable; call New.
type Engine struct {
	preview int
	log     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithPreviewLength sets the raw_response preview length in runes.
func WithPreviewLength(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.preview = n
		}
	}
}

// WithLogger sets the logger used for extraction gaps. Defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{preview: DefaultPreviewLength}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) logger() *zap.Logger {
	if e.log != nil {
		return e.log
	}
	return zap.L()
}

// NormalizeString detects the payload kind and normalizes it.
func (e *Engine) NormalizeString(raw, url string) (*model.Report, error) {
	in, err := Detect(raw)
	if err != nil {
		return nil, err
	}
	return e.Normalize(in, url)
}

// NormalizeValue normalizes an already-decoded JSON value.
func (e *Engine) NormalizeValue(v any, url string) (*model.Report, error) {
	in, err := DetectValue(v)
	if err != nil {
		return nil, err
	}
	return e.Normalize(in, url)
}

// Normalize builds the report for in. The only error is a malformed input.
func (e *Engine) Normalize(in Input, url string) (*model.Report, error) {
	fb := NewFallback(url)

	var (
		r   model.Report
		err error
	)
	switch t := in.(type) {
	case Text:
		r = fromText(string(t), fb)
	case Structured:
		if t == nil {
			return nil, malformed("missing payload", "")
		}
		r, err = fromStructured(t, fb)
		if err != nil {
			return nil, err
		}
	default:
		return nil, malformed("missing payload", "")
	}

	finalize(&r)
	r.URLAnalyzed = url
	r.RawResponse = truncate(rawString(in), e.preview)

	for _, path := range r.Fallbacks {
		e.logger().Debug("normalize: value not extracted, using fallback",
			zap.String("url", url),
			zap.String("field", path),
		)
	}
	return &r, nil
}

func fromText(raw string, fb Fallback) model.Report {
	text := canonicalText(raw)
	segs := Segment(text)
	var fallbacks []string

	found := Extract(headlineRules, text, head(text))
	headline := func(field string) int {
		if v, ok := found[field]; ok {
			return v
		}
		fallbacks = append(fallbacks, join(string(SectionScorecard), field))
		return fb.Headline(field)
	}

	var r model.Report
	sc := &r.Scorecard
	sc.OverallScore = headline(FieldOverallScore)
	sc.CitationLift = headline(FieldCitationLift)
	sc.VisibilityRank = headline(FieldVisibilityRank)

	scorecard, hasScorecard := segs.Section(SectionScorecard)
	if !hasScorecard {
		scorecard = text
	}
	sc.Metrics = Extract(metricRules, scorecard, "")
	if len(sc.Metrics) == 0 {
		sc.Metrics = fb.Metrics(sc.OverallScore, sc.CitationLift)
		fallbacks = append(fallbacks, pathMetrics)
	}
	sc.Summary = summarize(segs, scorecard)

	gap := segs.scope(SectionGapAnalysis, text)
	r.GapAnalysis.Summary = gapSummary(gap)
	// Percentages elsewhere are scorecard metrics, so competitors are only
	// read from a gap analysis section.
	if body, ok := segs.Section(SectionGapAnalysis); ok {
		r.GapAnalysis.Competitors = parseCompetitors(body)
	}
	if len(r.GapAnalysis.Competitors) == 0 {
		r.GapAnalysis.Competitors = placeholderCompetitors()
		fallbacks = append(fallbacks, pathCompetitors)
	}
	r.GapAnalysis.KeyFindings = parseFindings(gap)

	r.Roadmap.Recommendations = parseRecommendations(segs.scope(SectionRoadmap, text))
	if len(r.Roadmap.Recommendations) == 0 {
		r.Roadmap.Recommendations = placeholderRecommendations()
		fallbacks = append(fallbacks, pathRecommendations)
	}
	r.Roadmap.Timeline = defaultTimeline

	if body, ok := segs.Section(SectionDrafts); ok {
		r.Drafts.Rewrites = parseDrafts(body)
	}
	if len(r.Drafts.Rewrites) == 0 {
		r.Drafts.Rewrites = placeholderRewrites()
		fallbacks = append(fallbacks, pathRewrites)
	}
	r.Drafts.ThirdPartyTargeting = defaultThirdPartyTargeting
	r.Drafts.SubdomainTemplates = defaultSubdomainTemplates

	r.Fallbacks = fallbacks
	return r
}

// scope returns the body of name. Text without any recognized header is
// one undivided body, so it is searched whole.
func (s Segments) scope(name Section, whole string) string {
	if body, ok := s.Section(name); ok {
		return body
	}
	if len(s.Sections) == 0 {
		return whole
	}
	return ""
}

// summarize prefers a labelled summary paragraph, then the first line of
// the preamble or the scorecard.
func summarize(segs Segments, scorecard string) string {
	if s, ok := extractSummary(scorecard); ok {
		return s
	}
	for _, s := range []string{segs.Preamble, scorecard} {
		if line := firstLine(s); line != "" {
			return truncate(line, firstLineRunes)
		}
	}
	return ""
}

func gapSummary(gap string) string {
	if s, ok := extractSummary(gap); ok {
		return truncate(s, gapSummaryRunes)
	}
	return truncate(paragraph(gap), gapSummaryRunes)
}

func fromStructured(obj Structured, fb Fallback) (model.Report, error) {
	c := newMergeCtx(fb)
	tree, _ := reportSchema.coerce(c, "", map[string]any(obj))

	var r model.Report
	b, err := json.Marshal(tree)
	if err != nil {
		return r, eris.Wrap(err, "normalize: encode merged report")
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, eris.Wrap(err, "normalize: decode merged report")
	}
	r.Fallbacks = c.fallbacks
	return r, nil
}

// finalize enforces the report invariants on either path: numbers in range,
// gaps consistent with the overall score, known priorities, bounded strings
// and lists, and no nil collections.
func finalize(r *model.Report) {
	sc := &r.Scorecard
	sc.OverallScore = clamp(sc.OverallScore, percentRange.Min, percentRange.Max)
	sc.CitationLift = clamp(sc.CitationLift, percentRange.Min, percentRange.Max)
	sc.VisibilityRank = clamp(sc.VisibilityRank, rankRange.Min, rankRange.Max)
	metrics := make(map[string]int, len(sc.Metrics))
	for k, v := range sc.Metrics {
		metrics[k] = clamp(v, percentRange.Min, percentRange.Max)
	}
	sc.Metrics = metrics
	sc.Summary = truncate(sc.Summary, summaryRunes)

	g := &r.GapAnalysis
	g.Summary = truncate(g.Summary, gapSummaryRunes)
	comps := make([]model.Competitor, 0, len(g.Competitors))
	for _, c := range g.Competitors {
		c.Name = truncate(strings.TrimSpace(c.Name), maxCompetitorName)
		if c.Name == "" {
			continue
		}
		c.Score = clamp(c.Score, percentRange.Min, percentRange.Max)
		comps = append(comps, c)
		if len(comps) == maxCompetitors {
			break
		}
	}
	g.Competitors = withGaps(comps, sc.OverallScore)
	findings := make([]string, 0, len(g.KeyFindings))
	for _, f := range g.KeyFindings {
		if f = strings.TrimSpace(f); f != "" {
			findings = append(findings, truncate(f, findingRunes))
		}
	}
	g.KeyFindings = findings

	recs := make([]model.Recommendation, 0, len(r.Roadmap.Recommendations))
	for _, rec := range r.Roadmap.Recommendations {
		rec.Priority = model.Priority(strings.ToLower(strings.TrimSpace(string(rec.Priority))))
		if !rec.Priority.Valid() {
			rec.Priority = model.PriorityMedium
		}
		rec.Title = truncate(rec.Title, titleRunes)
		rec.Description = truncate(rec.Description, descriptionRunes)
		recs = append(recs, rec)
		if len(recs) == maxRecommendation {
			break
		}
	}
	r.Roadmap.Recommendations = recs
	if strings.TrimSpace(r.Roadmap.Timeline) == "" {
		r.Roadmap.Timeline = defaultTimeline
	}

	rewrites := make([]model.Rewrite, 0, len(r.Drafts.Rewrites))
	for _, rw := range r.Drafts.Rewrites {
		rw.Content = truncate(rw.Content, rewriteRunes)
		rewrites = append(rewrites, rw)
	}
	r.Drafts.Rewrites = rewrites

	fallbacks := slices.Clone(r.Fallbacks)
	if fallbacks == nil {
		fallbacks = []string{}
	}
	slices.Sort(fallbacks)
	r.Fallbacks = slices.Compact(fallbacks)
}
