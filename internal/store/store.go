package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/model"
)

// ErrNotFound is returned when an audit does not exist.
var ErrNotFound = eris.New("store: not found")

// AuditFilter specifies criteria for listing audits.
type AuditFilter struct {
	Status       model.AuditStatus `json:"status,omitempty"`
	URL          string            `json:"url,omitempty"`
	CreatedAfter time.Time         `json:"created_after,omitempty"`
	Limit        int               `json:"limit,omitempty"`
	Offset       int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for audits and scraped pages.
type Store interface {
	// Audits
	CreateAudit(ctx context.Context, url string) (*model.Audit, error)
	UpdateAuditStatus(ctx context.Context, id string, status model.AuditStatus) error
	CompleteAudit(ctx context.Context, id string, result *model.AuditResult) error
	FailAudit(ctx context.Context, id string, msg string) error
	GetAudit(ctx context.Context, id string) (*model.Audit, error)
	ListAudits(ctx context.Context, filter AuditFilter) ([]model.Audit, error)

	// Scrape cache
	GetCachedPage(ctx context.Context, url string) (*model.ScrapeCache, error)
	SetCachedPage(ctx context.Context, entry model.ScrapeCache) error
	DeleteExpiredPages(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
