package scrape

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxBodyBytes caps how much of a page is read before parsing.
const maxBodyBytes = 2 << 20

// Headers sent by the direct-fetch scrapers. Some sites refuse requests
// without a browser user agent.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
}

// newHTTPClient returns the client used by the direct-fetch scrapers.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// fetchHTML GETs targetURL and returns the status code and body of an
// unblocked HTML page.
func fetchHTML(ctx context.Context, client *http.Client, name, targetURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "%s: create request", name)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "%s: fetch", name)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, eris.Wrapf(err, "%s: read body", name)
	}

	if block := DetectBlock(resp, body); block != BlockNone {
		return resp.StatusCode, nil, eris.Wrapf(ErrBlocked, "%s: %s", name, block)
	}
	if resp.StatusCode >= 400 {
		return resp.StatusCode, nil, eris.Errorf("%s: status %d", name, resp.StatusCode)
	}
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return resp.StatusCode, nil, eris.Wrapf(ErrNotHTML, "%s: content type %q", name, resp.Header.Get("Content-Type"))
	}
	return resp.StatusCode, body, nil
}
