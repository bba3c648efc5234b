// Package archive keeps the raw model text of each audit next to the
// normalized report, keyed by the audited domain.
package archive

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/config"
)

// ErrNotArchived is returned by Load when nothing is stored for a URL.
var ErrNotArchived = eris.New("archive: not found")

// Archiver stores and retrieves raw audit text.
type Archiver interface {
	// Save writes content for the URL's domain and returns where it went.
	Save(ctx context.Context, pageURL, content string) (string, error)
	Load(ctx context.Context, pageURL string) (string, error)
}

// ReportName returns the archive object name for a URL:
// report_<host>.txt with a leading "www." removed.
func ReportName(pageURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil {
		return "", eris.Wrap(err, "archive: parse url")
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", eris.Errorf("archive: url %q has no host", pageURL)
	}
	host = strings.NewReplacer(":", "_", "/", "_", `\`, "_").Replace(host)
	return "report_" + host + ".txt", nil
}

// New builds the archiver selected by cfg.Driver.
func New(ctx context.Context, cfg config.ArchiveConfig) (Archiver, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "file":
		return NewFile(cfg.Dir), nil
	case "s3":
		a, err := NewS3(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, eris.Errorf("archive: unknown driver %q", cfg.Driver)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Save(_ context.Context, _ string, _ string) (string, error) { return "", nil }

func (Nop) Load(_ context.Context, _ string) (string, error) { return "", ErrNotArchived }
