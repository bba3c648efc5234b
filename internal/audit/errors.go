package audit

import (
	"errors"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidURL is returned for URLs that cannot be audited.
	ErrInvalidURL = eris.New("audit: invalid url")
	// ErrScrapeFailed is returned when no scraper produced usable content.
	ErrScrapeFailed = eris.New("audit: scrape failed")
	// ErrModelFailed is returned when the model call failed or came back empty.
	ErrModelFailed = eris.New("audit: model failed")
)

// Error ties a failure to the audit stage it happened in. errors.Is matches
// both the stage sentinel and the underlying cause.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func stageError(kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the stage sentinel of err, or nil.
func KindOf(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return nil
}

// NormalizeURL trims raw, adds https:// when no scheme is given, and checks
// that the result is an absolute http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", stageError(ErrInvalidURL, eris.New("empty url"))
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", stageError(ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", stageError(ErrInvalidURL, eris.Errorf("unsupported scheme %q", u.Scheme))
	}
	if u.Hostname() == "" {
		return "", stageError(ErrInvalidURL, eris.Errorf("no host in %q", raw))
	}
	return u.String(), nil
}
