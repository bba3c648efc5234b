package scrape

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/sells-group/aeo-cli/internal/model"
)

// minBlockRunes drops headings and list items too short to say anything.
const minBlockRunes = 10

// skipElements never contribute text: page chrome and code.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"nav":      true,
	"footer":   true,
	"header":   true,
}

// blockElements are the elements whose text is kept.
var blockElements = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true,
	"p": true, "li": true,
}

// LocalScraper fetches HTML via net/http and keeps the title, the meta
// description and the text of headings, paragraphs and list items. Free,
// no API calls. Falls through to the next scraper when blocked.
type LocalScraper struct {
	client *http.Client
}

// NewLocalScraper creates a LocalScraper. A zero timeout means 15s.
func NewLocalScraper(timeout time.Duration) *LocalScraper {
	return &LocalScraper{client: newHTTPClient(timeout)}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL and extracts its visible content.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	status, body, err := fetchHTML(ctx, l.client, l.Name(), targetURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: parse html")
	}

	return &Result{
		Page: model.ScrapedPage{
			URL:         targetURL,
			Title:       extractTitle(doc),
			Description: extractDescription(doc),
			Text:        extractBlocks(doc),
			StatusCode:  status,
		},
		Source: l.Name(),
	}, nil
}

// extractTitle returns the first <title> text.
func extractTitle(n *html.Node) string {
	var title string
	var f func(*html.Node) bool
	f = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			title = nodeText(n)
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if f(c) {
				return true
			}
		}
		return false
	}
	f(n)
	return title
}

// extractDescription returns <meta name="description"> content, falling
// back to og:description.
func extractDescription(n *html.Node) string {
	var desc, og string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, property, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name = strings.ToLower(attr.Val)
				case "property":
					property = strings.ToLower(attr.Val)
				case "content":
					content = strings.TrimSpace(attr.Val)
				}
			}
			switch {
			case name == "description" && desc == "":
				desc = content
			case property == "og:description" && og == "":
				og = content
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	if desc != "" {
		return desc
	}
	return og
}

// extractBlocks joins the text of every heading, paragraph and list item
// outside the page chrome. A kept block's descendants are not visited again.
func extractBlocks(n *html.Node) string {
	var parts []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipElements[n.Data] {
				return
			}
			if blockElements[n.Data] {
				if text := nodeText(n); utf8.RuneCountInString(text) > minBlockRunes {
					parts = append(parts, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(parts, " ")
}

// nodeText returns the whitespace-collapsed text under n, skipping scripts.
func nodeText(n *html.Node) string {
	var parts []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, strings.Fields(n.Data)...)
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(parts, " ")
}
