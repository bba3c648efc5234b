package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns reject URLs that point at files rather than pages.
var defaultExcludePatterns = []string{
	"*.pdf",
	"*.zip",
	"*.png",
	"*.jpg",
	"*.jpeg",
	"*.gif",
	"*.svg",
	"*.webp",
	"*.mp3",
	"*.mp4",
	"*.xml",
	"*.json",
	"/wp-admin/*",
	"/cdn-cgi/*",
}

// PathMatcher filters URLs based on glob-style path patterns.
// Patterns starting with "/" are matched against the path with a segmented
// match, so "/wp-admin/*" matches "/wp-admin/a/b". Patterns starting with
// "*." match the file extension at any depth.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/wp-admin/*", "*.pdf").
// Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL is unusable or matches any exclude pattern.
// Only absolute http(s) URLs with a host can be scraped.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}
	return m.isPathExcluded(u.Path)
}

// isPathExcluded checks a URL path against all patterns.
func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	for _, pattern := range m.patterns {
		pattern = strings.ToLower(pattern)
		if strings.HasPrefix(pattern, "*.") {
			if path.Ext(urlPath) == pattern[1:] {
				return true
			}
			continue
		}
		if matchSegmented(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/blog/*"
// matches both "/blog/post" and "/blog/deep/nested/path".
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	return false
}
