package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityValid(t *testing.T) {
	for _, p := range []Priority{PriorityHigh, PriorityMedium, PriorityLow} {
		assert.True(t, p.Valid(), p)
	}
	assert.False(t, Priority("").Valid())
	assert.False(t, Priority("High").Valid())
}

func TestReportIsFallback(t *testing.T) {
	r := &Report{Fallbacks: []string{"drafts.rewrites", "scorecard.metrics"}}
	assert.True(t, r.IsFallback("scorecard.metrics"))
	assert.False(t, r.IsFallback("scorecard.overall_score"))
	assert.False(t, (&Report{}).IsFallback("drafts.rewrites"))
}

func TestReportJSONFieldNames(t *testing.T) {
	b, err := json.Marshal(Report{Scorecard: Scorecard{Metrics: map[string]int{}}, Fallbacks: []string{}})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	for _, key := range []string{"scorecard", "gap_analysis", "roadmap", "drafts", "fallbacks", "url_analyzed", "raw_response"} {
		assert.Contains(t, raw, key)
	}
	assert.Contains(t, raw["scorecard"], "visibility_rank")
	assert.Contains(t, raw["drafts"], "third_party_targeting")
}

func TestAuditStatusTerminal(t *testing.T) {
	assert.True(t, AuditStatusComplete.Terminal())
	assert.True(t, AuditStatusFailed.Terminal())
	for _, s := range []AuditStatus{AuditStatusQueued, AuditStatusScraping, AuditStatusAnalyzing} {
		assert.False(t, s.Terminal(), s)
	}
}
