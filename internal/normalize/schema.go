package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Dotted paths of the values that can be synthesized.
const (
	pathOverallScore    = "scorecard.overall_score"
	pathCitationLift    = "scorecard.citation_lift"
	pathVisibilityRank  = "scorecard.visibility_rank"
	pathMetrics         = "scorecard.metrics"
	pathCompetitors     = "gap_analysis.competitors"
	pathRecommendations = "roadmap.recommendations"
	pathRewrites        = "drafts.rewrites"
)

// mergeCtx carries the state of one schema merge.
type mergeCtx struct {
	fb        Fallback
	resolved  map[string]int
	fallbacks []string
}

func newMergeCtx(fb Fallback) *mergeCtx {
	return &mergeCtx{fb: fb, resolved: make(map[string]int)}
}

// node is one level of the report schema. coerce returns the value to use
// at path: v when it can be coerced into the node's shape, the node's
// default otherwise. ok reports whether v was used.
type node interface {
	coerce(c *mergeCtx, path string, v any) (any, bool)
}

type field struct {
	key  string
	node node
}

// objectNode keeps its known fields only. A bare string in its place is
// wrapped under wrapKey.
type objectNode struct {
	fields  []field
	wrapKey string
}

func (n objectNode) coerce(c *mergeCtx, path string, v any) (any, bool) {
	var src map[string]any
	ok := true
	switch t := v.(type) {
	case map[string]any:
		src = t
	case Structured:
		src = t
	case string:
		if n.wrapKey != "" {
			src = map[string]any{n.wrapKey: t}
		} else {
			ok = false
		}
	default:
		ok = false
	}

	out := make(map[string]any, len(n.fields))
	for _, f := range n.fields {
		out[f.key], _ = f.node.coerce(c, join(path, f.key), src[f.key])
	}
	return out, ok
}

// listNode drops elements that cannot be coerced. A single value in its
// place is a one-element list.
type listNode struct {
	elem node
}

func (n listNode) coerce(c *mergeCtx, path string, v any) (any, bool) {
	out := []any{}
	switch t := v.(type) {
	case nil:
		return out, false
	case []any:
		for i, e := range t {
			if val, ok := n.elem.coerce(c, fmt.Sprintf("%s[%d]", path, i), e); ok {
				out = append(out, val)
			}
		}
	default:
		if val, ok := n.elem.coerce(c, path+"[0]", t); ok {
			out = append(out, val)
		}
	}
	return out, true
}

type stringNode struct {
	def string
}

func (n stringNode) coerce(_ *mergeCtx, _ string, v any) (any, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return n.def, false
}

// intNode rounds and clamps numbers and numeric strings into rng. When the
// value is unusable it takes fallback, which is recorded, or def.
type intNode struct {
	rng      Range
	def      int
	fallback func(Fallback) int
}

func (n intNode) coerce(c *mergeCtx, path string, v any) (any, bool) {
	f, ok := toFloat(v)
	var out int
	switch {
	case ok:
		out = clampFloat(f, n.rng)
	case n.fallback != nil:
		out = n.fallback(c.fb)
		c.fallbacks = append(c.fallbacks, path)
	default:
		out = n.def
	}
	c.resolved[path] = out
	return out, ok
}

// metricsNode is the dynamic metrics map. It is all-or-nothing: without a
// single usable entry every metric is synthesized around the already
// resolved overall score and citation lift.
type metricsNode struct {
	overall string
	lift    string
}

func (n metricsNode) coerce(c *mergeCtx, path string, v any) (any, bool) {
	out := make(map[string]int)
	if m, ok := v.(map[string]any); ok {
		for k, raw := range m {
			if f, ok := toFloat(raw); ok && strings.TrimSpace(k) != "" {
				out[k] = clampFloat(f, percentRange)
			}
		}
	}
	if len(out) > 0 {
		return out, true
	}
	c.fallbacks = append(c.fallbacks, path)
	return c.fb.Metrics(c.resolved[n.overall], c.resolved[n.lift]), false
}

// reportSchema is the canonical default record. Structured input is merged
// into it; scorecard gaps come from the fallback generator and every other
// missing value is empty but present.
var reportSchema = objectNode{fields: []field{
	{"scorecard", objectNode{wrapKey: "summary", fields: []field{
		{"overall_score", intNode{rng: percentRange, fallback: Fallback.OverallScore}},
		{"citation_lift", intNode{rng: percentRange, fallback: Fallback.CitationLift}},
		{"visibility_rank", intNode{rng: rankRange, fallback: Fallback.VisibilityRank}},
		{"metrics", metricsNode{overall: pathOverallScore, lift: pathCitationLift}},
		{"summary", stringNode{}},
	}}},
	{"gap_analysis", objectNode{wrapKey: "summary", fields: []field{
		{"summary", stringNode{}},
		{"competitors", listNode{elem: objectNode{wrapKey: "name", fields: []field{
			{"name", stringNode{}},
			{"score", intNode{rng: percentRange}},
			{"gap", intNode{rng: percentRange}},
		}}}},
		{"key_findings", listNode{elem: stringNode{}}},
	}}},
	{"roadmap", objectNode{wrapKey: "recommendations", fields: []field{
		{"recommendations", listNode{elem: objectNode{wrapKey: "title", fields: []field{
			{"title", stringNode{}},
			{"description", stringNode{}},
			{"priority", stringNode{def: "medium"}},
			{"expected_impact", stringNode{}},
		}}}},
		{"timeline", stringNode{def: defaultTimeline}},
	}}},
	{"drafts", objectNode{wrapKey: "rewrites", fields: []field{
		{"rewrites", listNode{elem: objectNode{wrapKey: "content", fields: []field{
			{"section", stringNode{}},
			{"content", stringNode{}},
		}}}},
		{"third_party_targeting", stringNode{}},
		{"subdomain_templates", stringNode{}},
	}}},
}}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// toFloat accepts JSON numbers and numeric strings such as "88" or "88%".
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func clampFloat(f float64, r Range) int {
	f = math.Round(f)
	if f <= float64(r.Min) {
		return r.Min
	}
	if f >= float64(r.Max) {
		return r.Max
	}
	return int(f)
}
