package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/aeo-cli/internal/model"
)

// competitorRe matches "<Capitalized name><separator><integer>%". It is
// deliberately case-sensitive: the name must start with an upper-case letter.
var competitorRe = regexp.MustCompile(`(?m)(?:^|[\s(,;])[-*•]?[ \t]*([A-Z][A-Za-z0-9&.' ]*?)[ \t]*[:–—(-]?[ \t]*(\d+)[ \t]*%`)

// parseCompetitors extracts competitor mentions in order of appearance.
// Names of maxCompetitorName runes or more are sentences, not names.
func parseCompetitors(text string) []model.Competitor {
	var out []model.Competitor
	seen := make(map[string]bool)
	for _, m := range competitorRe.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || utf8.RuneCountInString(name) >= maxCompetitorName {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, model.Competitor{
			Name:  name,
			Score: percentRange.clampDigits(m[2]),
		})
		if len(out) == maxCompetitors {
			break
		}
	}
	return out
}

func (r Range) clampDigits(digits string) int {
	return Rule{Range: r}.parse(digits)
}

// placeholderCompetitors stand in when no competitor could be extracted.
func placeholderCompetitors() []model.Competitor {
	return []model.Competitor{
		{Name: "Competitor A", Score: 80},
		{Name: "Competitor B", Score: 75},
		{Name: "Competitor C", Score: 70},
	}
}

// withGaps sets every competitor's gap against overall.
func withGaps(comps []model.Competitor, overall int) []model.Competitor {
	for i := range comps {
		comps[i].Gap = max(0, overall-comps[i].Score)
	}
	return comps
}

var (
	itemRe = regexp.MustCompile(`(?m)^[ \t>*-]*(\d+)[.)][ \t]+(.+)$`)

	// priorityTagRe removes "[Priority: High]" style tags before the title split.
	priorityTagRe = regexp.MustCompile(`(?i)\[\s*(?:priority\s*[:=\-–]?\s*)?(?:high|medium|low)(?:\s+priority)?\s*\]\s*`)
	leadPriority  = regexp.MustCompile(`(?i)^priority\s*[:=\-–]\s*(?:high|medium|low)\b[\s:|\-–]*`)
	trailPriority = regexp.MustCompile(`(?i)[\s|(\-–—]*\bpriority\s*[:=\-–]\s*(?:high|medium|low)\b\)?\s*$`)

	explicitPriorityRe = regexp.MustCompile(`(?i)\bpriority\s*[:=\-–]?\s*(high|medium|low)\b|\b(high|medium|low)[\s-]+priority\b`)

	priorityKeywords = []struct {
		re       *regexp.Regexp
		priority model.Priority
	}{
		{regexp.MustCompile(`(?i)\b(?:high|critical|urgent|important)\b`), model.PriorityHigh},
		{regexp.MustCompile(`(?i)\b(?:medium|moderate|standard)\b`), model.PriorityMedium},
		{regexp.MustCompile(`(?i)\b(?:low|minor|optional)\b`), model.PriorityLow},
	}
)

// classifyPriority resolves an item's priority: an explicit "priority: X"
// or "X priority" wins, then the high, medium and low keyword sets in that
// order, then medium.
func classifyPriority(text string) model.Priority {
	if m := explicitPriorityRe.FindStringSubmatch(text); m != nil {
		level := m[1]
		if level == "" {
			level = m[2]
		}
		return model.Priority(strings.ToLower(level))
	}
	for _, kw := range priorityKeywords {
		if kw.re.MatchString(text) {
			return kw.priority
		}
	}
	return model.PriorityMedium
}

func expectedImpact(i int) string {
	return fmt.Sprintf("Increase citation frequency by %d%% in 60 days", 15+i*5)
}

// parseRecommendations extracts numbered roadmap items.
func parseRecommendations(text string) []model.Recommendation {
	var out []model.Recommendation
	for _, m := range itemRe.FindAllStringSubmatch(text, -1) {
		raw := stripMarkdown(m[2])
		if raw == "" {
			continue
		}
		priority := classifyPriority(raw)

		clean := priorityTagRe.ReplaceAllString(raw, "")
		clean = leadPriority.ReplaceAllString(clean, "")
		clean = strings.TrimSpace(trailPriority.ReplaceAllString(clean, ""))
		if clean == "" {
			clean = raw
		}

		title, desc := splitTitle(clean)
		out = append(out, model.Recommendation{
			Title:          title,
			Description:    desc,
			Priority:       priority,
			ExpectedImpact: expectedImpact(len(out)),
		})
		if len(out) == maxRecommendation {
			break
		}
	}
	return out
}

// splitTitle splits an item at its first colon. Without a usable colon the
// title is the leading titleFallbackLen runes and the description the text.
func splitTitle(text string) (string, string) {
	if idx := strings.Index(text, ":"); idx > 0 {
		title := strings.TrimSpace(text[:idx])
		desc := strings.TrimSpace(strings.TrimLeft(text[idx+1:], ": "))
		if desc == "" {
			desc = text
		}
		return truncate(title, titleRunes), truncate(desc, descriptionRunes)
	}
	return strings.TrimSpace(truncate(text, titleFallbackLen)), truncate(text, descriptionRunes)
}

// placeholderRecommendations stand in when no roadmap item could be extracted.
func placeholderRecommendations() []model.Recommendation {
	return []model.Recommendation{
		{
			Title:          "Optimize Meta Descriptions",
			Description:    "Rewrite meta descriptions around brand-specific terms and a clear value proposition",
			Priority:       model.PriorityHigh,
			ExpectedImpact: "Increase citation frequency by 20% in 60 days",
		},
		{
			Title:          "Add Structured Data",
			Description:    "Publish JSON-LD structured data so language models can parse the brand's entities",
			Priority:       model.PriorityHigh,
			ExpectedImpact: "Increase citation frequency by 25% in 60 days",
		},
		{
			Title:          "Build Content Authority",
			Description:    "Publish authoritative content on core industry topics to earn brand mentions",
			Priority:       model.PriorityMedium,
			ExpectedImpact: "Increase citation frequency by 30% in 60 days",
		},
	}
}

var (
	findingLabelRe = regexp.MustCompile(`(?i)\b(?:key\s+)?(?:findings?|insights?|key\s+points?)\b[ \t*_]*(?:#?\d+[ \t*_]*)?(?::|[ \t]+[-–—][ \t])[ \t*_]*(.*)$`)
	bulletRe       = regexp.MustCompile(`^[ \t]*(?:[-*•]|\d+[.)])[ \t]+(.+)$`)
)

// parseFindings collects labelled findings. A label with nothing after it
// opens a list: the bullet lines that follow, up to a blank line, are each
// a finding.
func parseFindings(text string) []string {
	out := []string{}
	add := func(s string) {
		s = stripMarkdown(s)
		if utf8.RuneCountInString(s) > minFindingLen {
			out = append(out, truncate(s, findingRunes))
		}
	}

	collecting := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			collecting = false
			continue
		}
		if m := findingLabelRe.FindStringSubmatch(line); m != nil {
			if rest := stripMarkdown(m[1]); rest != "" {
				add(rest)
				collecting = false
			} else {
				collecting = true
			}
			continue
		}
		if collecting {
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				add(m[1])
				continue
			}
			collecting = false
		}
	}
	return out
}

const (
	draftSection            = "Homepage"
	placeholderDraftSection = "Homepage Meta Description"
	placeholderDraftContent = "Rewrite the homepage meta description to lead with the brand name, its core offering and a concrete value proposition so AI models can recognize and cite it."

	defaultThirdPartyTargeting = "Prioritize high-authority sources that models cite: Wikipedia, industry publications, review sites and educational resources. Work with industry voices to earn mentions and citations."
	defaultSubdomainTemplates  = "Create subdomains for:\n- blog.yourbrand.com (content marketing)\n- resources.yourbrand.com (downloadable guides)\n- case-studies.yourbrand.com (customer stories)\n\nGive each subdomain clear metadata and structured data for AI discovery."
	defaultTimeline            = "60 days"
)

// parseDrafts turns a non-empty drafts section into a single rewrite.
func parseDrafts(text string) []model.Rewrite {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []model.Rewrite{{Section: draftSection, Content: truncate(text, rewriteRunes)}}
}

func placeholderRewrites() []model.Rewrite {
	return []model.Rewrite{{Section: placeholderDraftSection, Content: placeholderDraftContent}}
}
