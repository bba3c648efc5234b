package model

// Priority ranks a roadmap recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Report is the normalized four-tier visibility audit.
type Report struct {
	Scorecard   Scorecard   `json:"scorecard" yaml:"scorecard"`
	GapAnalysis GapAnalysis `json:"gap_analysis" yaml:"gap_analysis"`
	Roadmap     Roadmap     `json:"roadmap" yaml:"roadmap"`
	Drafts      Drafts      `json:"drafts" yaml:"drafts"`

	// Fallbacks lists the dotted field paths whose values were synthesized
	// rather than extracted, sorted.
	Fallbacks []string `json:"fallbacks" yaml:"fallbacks"`

	URLAnalyzed string `json:"url_analyzed" yaml:"url_analyzed"`
	RawResponse string `json:"raw_response" yaml:"raw_response"`
}

// IsFallback reports whether the value at path was synthesized.
func (r *Report) IsFallback(path string) bool {
	for _, p := range r.Fallbacks {
		if p == path {
			return true
		}
	}
	return false
}

// Scorecard is tier 1: the citation audit scorecard.
type Scorecard struct {
	OverallScore   int            `json:"overall_score" yaml:"overall_score"`
	CitationLift   int            `json:"citation_lift" yaml:"citation_lift"`
	VisibilityRank int            `json:"visibility_rank" yaml:"visibility_rank"`
	Metrics        map[string]int `json:"metrics" yaml:"metrics"`
	Summary        string         `json:"summary" yaml:"summary"`
}

// Competitor is a brand compared against the audited site.
type Competitor struct {
	Name  string `json:"name" yaml:"name"`
	Score int    `json:"score" yaml:"score"`
	Gap   int    `json:"gap" yaml:"gap"`
}

// GapAnalysis is tier 2: the competitive gap analysis.
type GapAnalysis struct {
	Summary     string       `json:"summary" yaml:"summary"`
	Competitors []Competitor `json:"competitors" yaml:"competitors"`
	KeyFindings []string     `json:"key_findings" yaml:"key_findings"`
}

// Recommendation is a single roadmap intervention.
type Recommendation struct {
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description" yaml:"description"`
	Priority       Priority `json:"priority" yaml:"priority"`
	ExpectedImpact string   `json:"expected_impact" yaml:"expected_impact"`
}

// Roadmap is tier 3: the ranked intervention roadmap.
type Roadmap struct {
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
	Timeline        string           `json:"timeline" yaml:"timeline"`
}

// Rewrite is a drafted content replacement for one section of the site.
type Rewrite struct {
	Section string `json:"section" yaml:"section"`
	Content string `json:"content" yaml:"content"`
}

// Drafts is tier 4: rewrites and templates.
type Drafts struct {
	Rewrites            []Rewrite `json:"rewrites" yaml:"rewrites"`
	ThirdPartyTargeting string    `json:"third_party_targeting" yaml:"third_party_targeting"`
	SubdomainTemplates  string    `json:"subdomain_templates" yaml:"subdomain_templates"`
}
