package scrape

import (
	"bytes"
	"net/http"
)

// BlockType names the protection that answered instead of the site.
type BlockType string

const (
	BlockNone        BlockType = ""
	BlockCloudflare  BlockType = "cloudflare"
	BlockBotManager  BlockType = "bot_manager"
	BlockCaptcha     BlockType = "captcha"
	BlockRateLimited BlockType = "rate_limited"
	BlockJSShell     BlockType = "js_shell"
)

// scanPrefix bounds how much of a body is searched for challenge markers.
const scanPrefix = 64 << 10

// shellMaxBytes is the size under which a noscript page counts as an empty
// client-rendered shell.
const shellMaxBytes = 2000

type bodyMarker struct {
	block BlockType
	all   []string // every marker must appear
}

// bodyMarkers is checked in order; the first match wins.
var bodyMarkers = []bodyMarker{
	{BlockCloudflare, []string{"checking your browser"}},
	{BlockCloudflare, []string{"cf-browser-verification"}},
	{BlockCloudflare, []string{"cloudflare", "challenge"}},
	{BlockBotManager, []string{"captcha-delivery.com"}},
	{BlockBotManager, []string{"px-captcha"}},
	{BlockBotManager, []string{"access denied", "reference #"}},
	{BlockCaptcha, []string{"captcha"}},
}

// DetectBlock inspects a response for anti-bot interstitials, rate limiting
// and JavaScript-only shells. It returns BlockNone for a usable page.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return BlockRateLimited
	case http.StatusForbidden, http.StatusServiceUnavailable:
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			resp.Header.Get("server") == "cloudflare" {
			return BlockCloudflare
		}
		if resp.Header.Get("x-datadome") != "" {
			return BlockBotManager
		}
	}

	if len(body) > scanPrefix {
		body = body[:scanPrefix]
	}
	lower := bytes.ToLower(body)

	for _, m := range bodyMarkers {
		if containsAll(lower, m.all) {
			return m.block
		}
	}

	if len(lower) < shellMaxBytes {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
			return BlockJSShell
		}
		if bytes.Contains(lower, []byte(`meta http-equiv="refresh"`)) {
			return BlockJSShell
		}
	}

	return BlockNone
}

func containsAll(haystack []byte, needles []string) bool {
	for _, n := range needles {
		if !bytes.Contains(haystack, []byte(n)) {
			return false
		}
	}
	return true
}
