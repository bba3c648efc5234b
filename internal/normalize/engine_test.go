package normalize

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/aeo-cli/internal/model"
)

const fullReport = `Executive overview of example.com

## Tier 1: Citation Audit Scorecard
Overall Score: 72
Citation Lift: 18
Visibility Rank: 5
Content Quality: 80
Metadata Score: 65
Summary: The site is cited occasionally but lacks structured data.

## Tier 2: Competitive Gap Analysis
Competitors lead on citation share.
- HubSpot: 85%
- Salesforce: 60%
Key Finding: Competitors publish far more comparison content.

## Tier 3: Intervention Roadmap
1. Add FAQ schema: mark up product questions [Priority: High]
2. Refresh meta descriptions: minor wording changes

## Tier 4: Drafts
Example.com helps teams ship faster.`

func TestNormalize_FullReport(t *testing.T) {
	r, err := New().Normalize(Text(fullReport), "https://example.com")
	require.NoError(t, err)

	assert.Equal(t, 72, r.Scorecard.OverallScore)
	assert.Equal(t, 18, r.Scorecard.CitationLift)
	assert.Equal(t, 5, r.Scorecard.VisibilityRank)
	assert.Equal(t, map[string]int{FieldContentQuality: 80, FieldMetadataScore: 65}, r.Scorecard.Metrics)
	assert.Equal(t, "The site is cited occasionally but lacks structured data.", r.Scorecard.Summary)

	assert.Contains(t, r.GapAnalysis.Summary, "Competitors lead on citation share.")
	assert.Equal(t, []model.Competitor{
		{Name: "HubSpot", Score: 85, Gap: 0},
		{Name: "Salesforce", Score: 60, Gap: 12},
	}, r.GapAnalysis.Competitors)
	assert.Equal(t, []string{"Competitors publish far more comparison content."}, r.GapAnalysis.KeyFindings)

	require.Len(t, r.Roadmap.Recommendations, 2)
	assert.Equal(t, model.Recommendation{
		Title:          "Add FAQ schema",
		Description:    "mark up product questions",
		Priority:       model.PriorityHigh,
		ExpectedImpact: "Increase citation frequency by 15% in 60 days",
	}, r.Roadmap.Recommendations[0])
	assert.Equal(t, model.PriorityLow, r.Roadmap.Recommendations[1].Priority)
	assert.Equal(t, "60 days", r.Roadmap.Timeline)

	assert.Equal(t, []model.Rewrite{{Section: "Homepage", Content: "Example.com helps teams ship faster."}}, r.Drafts.Rewrites)
	assert.NotEmpty(t, r.Drafts.ThirdPartyTargeting)
	assert.NotEmpty(t, r.Drafts.SubdomainTemplates)

	assert.NotNil(t, r.Fallbacks)
	assert.Empty(t, r.Fallbacks)
	assert.Equal(t, "https://example.com", r.URLAnalyzed)
	assert.Equal(t, fullReport, r.RawResponse)
}

func TestNormalize_ScenarioA_LabelledScores(t *testing.T) {
	r, err := New().NormalizeString("Overall Score: 88\nCitation Lift: 22", "https://a.example")
	require.NoError(t, err)

	assert.Equal(t, 88, r.Scorecard.OverallScore)
	assert.Equal(t, 22, r.Scorecard.CitationLift)
	assert.False(t, r.IsFallback(pathOverallScore))
	assert.False(t, r.IsFallback(pathCitationLift))
	assert.True(t, r.IsFallback(pathVisibilityRank))
}

func TestNormalize_ScenarioB_NoNumbers(t *testing.T) {
	url := "https://example.com"
	r, err := New().NormalizeString("The brand has limited presence in AI answers.", url)
	require.NoError(t, err)

	sc := r.Scorecard
	assert.GreaterOrEqual(t, sc.OverallScore, 60)
	assert.Less(t, sc.OverallScore, 90)
	assert.GreaterOrEqual(t, sc.CitationLift, 10)
	assert.Less(t, sc.CitationLift, 35)

	fb := NewFallback(url)
	assert.Equal(t, fb.OverallScore(), sc.OverallScore)
	assert.Equal(t, fb.Metrics(sc.OverallScore, sc.CitationLift), sc.Metrics)
	assert.Equal(t, "The brand has limited presence in AI answers.", sc.Summary)

	require.Len(t, r.GapAnalysis.Competitors, 3)
	for i, c := range r.GapAnalysis.Competitors {
		assert.Equal(t, fmt.Sprintf("Competitor %c", 'A'+i), c.Name)
		assert.Equal(t, max(0, sc.OverallScore-c.Score), c.Gap)
	}
	assert.Len(t, r.Roadmap.Recommendations, 3)
	assert.Len(t, r.Drafts.Rewrites, 1)
	assert.Empty(t, r.GapAnalysis.KeyFindings)

	assert.Equal(t, []string{
		pathRewrites,
		pathCompetitors,
		pathRecommendations,
		pathCitationLift,
		pathMetrics,
		pathOverallScore,
		pathVisibilityRank,
	}, r.Fallbacks)
}

func TestNormalize_ScenarioC_SparseObject(t *testing.T) {
	url := "https://c.example"
	r, err := New().NormalizeString(`{"scorecard": {"overall_score": 50}}`, url)
	require.NoError(t, err)

	fb := NewFallback(url)
	sc := r.Scorecard
	assert.Equal(t, 50, sc.OverallScore)
	assert.Equal(t, fb.CitationLift(), sc.CitationLift)
	assert.Equal(t, fb.VisibilityRank(), sc.VisibilityRank)
	assert.Equal(t, fb.Metrics(50, sc.CitationLift), sc.Metrics)
	assert.Empty(t, sc.Summary)

	assert.Equal(t, []string{pathCitationLift, pathMetrics, pathVisibilityRank}, r.Fallbacks)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))

	assert.Equal(t, map[string]any{
		"summary":      "",
		"competitors":  []any{},
		"key_findings": []any{},
	}, out["gap_analysis"])
	assert.Equal(t, map[string]any{
		"recommendations": []any{},
		"timeline":        "60 days",
	}, out["roadmap"])
	assert.Equal(t, map[string]any{
		"rewrites":              []any{},
		"third_party_targeting": "",
		"subdomain_templates":   "",
	}, out["drafts"])
}

func TestNormalize_ScenarioD_RoadmapPriorities(t *testing.T) {
	r, err := New().NormalizeString("## Roadmap\n1. Fix titles\n2. Add schema markup (high priority)", "https://d.example")
	require.NoError(t, err)

	recs := r.Roadmap.Recommendations
	require.Len(t, recs, 2)
	assert.Equal(t, model.PriorityMedium, recs[0].Priority)
	assert.Equal(t, model.PriorityHigh, recs[1].Priority)
	assert.False(t, r.IsFallback(pathRecommendations))
}

func TestNormalize_SchemaCompleteness(t *testing.T) {
	inputs := map[string]Input{
		"empty text":    Text(""),
		"garbage":       Text("~~~ 123 ### ???"),
		"full report":   Text(fullReport),
		"empty object":  Structured{},
		"unknown keys":  Structured{"foo": 1, "bar": []any{"x"}},
		"wrong shapes":  Structured{"scorecard": "just text", "gap_analysis": 42.0, "roadmap": "Do X", "drafts": []any{"a"}},
		"null sections": Structured{"scorecard": nil, "roadmap": nil},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			r, err := New().Normalize(in, "https://complete.example")
			require.NoError(t, err)
			assertComplete(t, r)
		})
	}
}

func assertComplete(t *testing.T, r *model.Report) {
	t.Helper()

	b, err := json.Marshal(r)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))

	for _, key := range []string{"scorecard", "gap_analysis", "roadmap", "drafts"} {
		assert.IsType(t, map[string]any{}, out[key], key)
	}
	sc := out["scorecard"].(map[string]any)
	assert.IsType(t, map[string]any{}, sc["metrics"])
	gap := out["gap_analysis"].(map[string]any)
	assert.IsType(t, []any{}, gap["competitors"])
	assert.IsType(t, []any{}, gap["key_findings"])
	assert.IsType(t, []any{}, out["roadmap"].(map[string]any)["recommendations"])
	assert.IsType(t, []any{}, out["drafts"].(map[string]any)["rewrites"])
	assert.IsType(t, []any{}, out["fallbacks"])

	assertRanges(t, r)
}

func assertRanges(t *testing.T, r *model.Report) {
	t.Helper()

	sc := r.Scorecard
	assert.True(t, sc.OverallScore >= 0 && sc.OverallScore <= 100)
	assert.True(t, sc.CitationLift >= 0 && sc.CitationLift <= 100)
	assert.GreaterOrEqual(t, sc.VisibilityRank, 1)
	for k, v := range sc.Metrics {
		assert.True(t, v >= 0 && v <= 100, k)
	}
	for _, c := range r.GapAnalysis.Competitors {
		assert.True(t, c.Score >= 0 && c.Score <= 100)
		assert.Equal(t, max(0, sc.OverallScore-c.Score), c.Gap)
	}
	for _, rec := range r.Roadmap.Recommendations {
		assert.True(t, rec.Priority.Valid())
	}
}

func TestNormalize_WrongShapesAreWrapped(t *testing.T) {
	r, err := New().Normalize(Structured{
		"scorecard": "just text",
		"roadmap":   "Do X",
		"drafts":    "Fresh homepage copy",
	}, "https://wrap.example")
	require.NoError(t, err)

	assert.Equal(t, "just text", r.Scorecard.Summary)
	require.Len(t, r.Roadmap.Recommendations, 1)
	assert.Equal(t, "Do X", r.Roadmap.Recommendations[0].Title)
	assert.Equal(t, model.PriorityMedium, r.Roadmap.Recommendations[0].Priority)
	assert.Equal(t, []model.Rewrite{{Content: "Fresh homepage copy"}}, r.Drafts.Rewrites)
}

func TestNormalize_StructuredCoercion(t *testing.T) {
	r, err := New().Normalize(Structured{
		"scorecard": map[string]any{
			"overall_score":   150.0,
			"citation_lift":   "12%",
			"visibility_rank": -3.0,
			"metrics":         map[string]any{"authority_score": 120.0, "noise": "bad", "relevance_score": 44.6},
		},
		"gap_analysis": map[string]any{
			"competitors": []any{
				map[string]any{"name": "A", "score": "60%", "gap": 99.0},
				map[string]any{"name": "B", "score": 90.6},
				"C",
				map[string]any{"score": 5.0},
				42.0,
			},
			"key_findings": "Only one finding here",
		},
		"roadmap": map[string]any{
			"recommendations": []any{
				map[string]any{"title": "T", "priority": "HIGH"},
				map[string]any{"title": "U", "priority": "urgent"},
			},
		},
	}, "https://coerce.example")
	require.NoError(t, err)

	sc := r.Scorecard
	assert.Equal(t, 100, sc.OverallScore)
	assert.Equal(t, 12, sc.CitationLift)
	assert.Equal(t, 1, sc.VisibilityRank)
	assert.Equal(t, map[string]int{"authority_score": 100, "relevance_score": 45}, sc.Metrics)
	assert.False(t, r.IsFallback(pathMetrics))

	assert.Equal(t, []model.Competitor{
		{Name: "A", Score: 60, Gap: 40},
		{Name: "B", Score: 91, Gap: 9},
		{Name: "C", Score: 0, Gap: 100},
	}, r.GapAnalysis.Competitors)
	assert.Equal(t, []string{"Only one finding here"}, r.GapAnalysis.KeyFindings)

	require.Len(t, r.Roadmap.Recommendations, 2)
	assert.Equal(t, model.PriorityHigh, r.Roadmap.Recommendations[0].Priority)
	assert.Equal(t, model.PriorityMedium, r.Roadmap.Recommendations[1].Priority)
	assert.Equal(t, "60 days", r.Roadmap.Timeline)
}

func TestNormalize_StructuredCaps(t *testing.T) {
	comps := make([]any, 0, 20)
	recs := make([]any, 0, 20)
	for i := 0; i < 20; i++ {
		comps = append(comps, map[string]any{"name": fmt.Sprintf("Brand %d", i), "score": 50.0})
		recs = append(recs, map[string]any{"title": fmt.Sprintf("Step %d", i)})
	}
	r, err := New().Normalize(Structured{
		"gap_analysis": map[string]any{"competitors": comps},
		"roadmap":      map[string]any{"recommendations": recs},
	}, "https://caps.example")
	require.NoError(t, err)

	assert.Len(t, r.GapAnalysis.Competitors, maxCompetitors)
	assert.Len(t, r.Roadmap.Recommendations, maxRecommendation)
}

func TestNormalize_Deterministic(t *testing.T) {
	e := New()
	a, err := e.NormalizeString("nothing extractable here", "https://same.example")
	require.NoError(t, err)
	b, err := e.NormalizeString("nothing extractable here", "https://same.example")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestNormalize_DistinctURLsDiverge(t *testing.T) {
	e := New()
	seen := make(map[int]bool)
	for i := 0; i < 20; i++ {
		r, err := e.NormalizeString("nothing extractable here", fmt.Sprintf("https://brand%d.example", i))
		require.NoError(t, err)
		seen[r.Scorecard.OverallScore] = true
	}
	assert.Greater(t, len(seen), 5)
}

func TestNormalize_FullWidthDigits(t *testing.T) {
	r, err := New().NormalizeString("Overall Score: ８８", "https://fw.example")
	require.NoError(t, err)
	assert.Equal(t, 88, r.Scorecard.OverallScore)
}

func TestNormalize_ClampsExtracted(t *testing.T) {
	r, err := New().NormalizeString("Overall Score: 140\nVisibility Rank: 0", "https://clamp.example")
	require.NoError(t, err)

	assert.Equal(t, 100, r.Scorecard.OverallScore)
	assert.Equal(t, 1, r.Scorecard.VisibilityRank)
	assertRanges(t, r)
}

func TestNormalize_PreviewLength(t *testing.T) {
	e := New(WithPreviewLength(10))

	r, err := e.NormalizeString("Overall Score: 88 and a long tail of text", "https://p.example")
	require.NoError(t, err)
	assert.Equal(t, "Overall Sc", r.RawResponse)

	r, err = e.Normalize(Structured{"drafts": "x"}, "https://p.example")
	require.NoError(t, err)
	assert.Equal(t, `{"drafts":`, r.RawResponse)
}

func TestNormalize_MalformedInput(t *testing.T) {
	e := New()

	r, err := e.NormalizeString("   ", "https://m.example")
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrMalformedInput)

	r, err = e.NormalizeValue([]any{1.0}, "https://m.example")
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrMalformedInput)

	r, err = e.Normalize(nil, "https://m.example")
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNormalize_LogsGapsAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := New(WithLogger(zap.New(core)))

	r, err := e.NormalizeString("Overall Score: 88", "https://log.example")
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, len(r.Fallbacks))
	for _, entry := range entries {
		assert.Equal(t, zap.DebugLevel, entry.Level)
		assert.Equal(t, "https://log.example", entry.ContextMap()["url"])
	}
}

func TestNormalize_ProseInGapSectionKeepsCompetitors(t *testing.T) {
	text := `## Tier 1: Citation Audit Scorecard
Overall Score: 70

## Tier 2: Competitive Gap Analysis
Templates used by rivals earn more citations.
- HubSpot: 85%
- Salesforce: 80%

## Tier 4: Drafts
Acme makes onboarding painless.`

	r, err := New().NormalizeString(text, "https://acme.com")
	require.NoError(t, err)

	assert.Equal(t, []model.Competitor{
		{Name: "HubSpot", Score: 85, Gap: 0},
		{Name: "Salesforce", Score: 80, Gap: 0},
	}, r.GapAnalysis.Competitors)
	assert.False(t, r.IsFallback(pathCompetitors))

	require.Len(t, r.Drafts.Rewrites, 1)
	assert.Equal(t, "Acme makes onboarding painless.", r.Drafts.Rewrites[0].Content)
	assert.False(t, r.IsFallback(pathRewrites))
}

func TestNormalize_HeaderlessMetricsAreNotCompetitors(t *testing.T) {
	r, err := New().NormalizeString("Overall Score: 72\nCitation Lift: 18%\nContent Quality: 65%\nBrand Mentions: 40%", "https://h.example")
	require.NoError(t, err)

	assert.Equal(t, 72, r.Scorecard.OverallScore)
	assert.Equal(t, 18, r.Scorecard.CitationLift)
	assert.Equal(t, map[string]int{FieldContentQuality: 65, FieldBrandMentions: 40}, r.Scorecard.Metrics)

	assert.Equal(t, placeholderCompetitors()[0].Name, r.GapAnalysis.Competitors[0].Name)
	assert.True(t, r.IsFallback(pathCompetitors))
}

func TestNormalize_FencedReportAfterPreamble(t *testing.T) {
	raw := "Here is the report:\n```json\n{\"scorecard\":{\"overall_score\":50}}\n```"

	r, err := New().NormalizeString(raw, "https://f.example")
	require.NoError(t, err)

	assert.Equal(t, 50, r.Scorecard.OverallScore)
	assert.False(t, r.IsFallback(pathOverallScore))
}

func TestNormalize_NegativeScoresClamp(t *testing.T) {
	r, err := New().NormalizeString("Overall Score: -5\nCitation Lift: 12\nVisibility Rank: -2", "https://neg.example")
	require.NoError(t, err)

	assert.Equal(t, 0, r.Scorecard.OverallScore)
	assert.Equal(t, 12, r.Scorecard.CitationLift)
	assert.Equal(t, 1, r.Scorecard.VisibilityRank)
	assert.False(t, r.IsFallback(pathOverallScore))
}
