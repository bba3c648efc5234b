package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/store"
)

// Snapshot holds a point-in-time summary of stored audits.
type Snapshot struct {
	Total    int     `json:"total" yaml:"total"`
	Complete int     `json:"complete" yaml:"complete"`
	Failed   int     `json:"failed" yaml:"failed"`
	Pending  int     `json:"pending" yaml:"pending"`
	FailRate float64 `json:"fail_rate" yaml:"fail_rate"`

	AvgOverallScore float64 `json:"avg_overall_score" yaml:"avg_overall_score"`
	AvgCitationLift float64 `json:"avg_citation_lift" yaml:"avg_citation_lift"`
	// FallbackRate is the share of complete audits with at least one
	// synthesized field.
	FallbackRate  float64        `json:"fallback_rate" yaml:"fallback_rate"`
	FallbackPaths map[string]int `json:"fallback_paths" yaml:"fallback_paths"`

	InputTokens  int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int64   `json:"output_tokens" yaml:"output_tokens"`
	CostUSD      float64 `json:"cost_usd" yaml:"cost_usd"`

	LookbackHours int       `json:"lookback_hours" yaml:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at" yaml:"collected_at"`
}

// TopFallbacks returns fallback paths ordered by count, then name.
func (s *Snapshot) TopFallbacks() []string {
	paths := make([]string, 0, len(s.FallbackPaths))
	for p := range s.FallbackPaths {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		ci, cj := s.FallbackPaths[paths[i]], s.FallbackPaths[paths[j]]
		if ci != cj {
			return ci > cj
		}
		return paths[i] < paths[j]
	})
	return paths
}

// AuditLister is the part of store.Store the collector reads.
type AuditLister interface {
	ListAudits(ctx context.Context, filter store.AuditFilter) ([]model.Audit, error)
}

// CostFunc prices token usage for a model.
type CostFunc func(model string, input, output int64) float64

// Collector gathers a Snapshot from the store.
type Collector struct {
	store AuditLister
	cost  CostFunc
}

// NewCollector creates a collector. cost may be nil.
func NewCollector(st AuditLister, cost CostFunc) *Collector {
	return &Collector{store: st, cost: cost}
}

// Collect summarizes audits created within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		FallbackPaths: make(map[string]int),
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	filter := store.AuditFilter{Limit: 10000}
	if lookbackHours > 0 {
		filter.CreatedAfter = snap.CollectedAt.Add(-time.Duration(lookbackHours) * time.Hour)
	}
	audits, err := c.store.ListAudits(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "metrics: list audits")
	}

	snap.Total = len(audits)
	var scoreSum, liftSum float64
	var reports, withFallback int

	for _, a := range audits {
		switch {
		case a.Status == model.AuditStatusComplete:
			snap.Complete++
		case a.Status == model.AuditStatusFailed:
			snap.Failed++
		default:
			snap.Pending++
		}

		snap.InputTokens += a.InputTokens
		snap.OutputTokens += a.OutputTokens
		if c.cost != nil {
			snap.CostUSD += c.cost(a.Model, a.InputTokens, a.OutputTokens)
		}

		if a.Report == nil {
			continue
		}
		reports++
		scoreSum += float64(a.Report.Scorecard.OverallScore)
		liftSum += float64(a.Report.Scorecard.CitationLift)
		if len(a.Report.Fallbacks) > 0 {
			withFallback++
		}
		for _, p := range a.Report.Fallbacks {
			snap.FallbackPaths[p]++
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	if reports > 0 {
		snap.AvgOverallScore = scoreSum / float64(reports)
		snap.AvgCitationLift = liftSum / float64(reports)
		snap.FallbackRate = float64(withFallback) / float64(reports)
	}
	return snap, nil
}
