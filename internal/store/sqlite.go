package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/aeo-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audits (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	report        TEXT,
	error         TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_audits_status ON audits(status);
CREATE INDEX IF NOT EXISTS idx_audits_url ON audits(url);
CREATE INDEX IF NOT EXISTS idx_audits_created_at ON audits(created_at);

CREATE TABLE IF NOT EXISTS scrape_cache (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL UNIQUE,
	page       TEXT NOT NULL,
	scraped_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_cache_expires_at ON scrape_cache(expires_at);
`

const auditColumns = `id, url, status, report, error, model, input_tokens, output_tokens, created_at, updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAudit(ctx context.Context, url string) (*model.Audit, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audits (id, url, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, url, string(model.AuditStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert audit")
	}

	return &model.Audit{
		ID:        id,
		URL:       url,
		Status:    model.AuditStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateAuditStatus(ctx context.Context, id string, status model.AuditStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update audit status %s", id)
	}
	return checkRowsAffected(res, "audit", id)
}

func (s *SQLiteStore) CompleteAudit(ctx context.Context, id string, result *model.AuditResult) error {
	if result == nil {
		return eris.New("sqlite: complete audit: nil result")
	}
	reportJSON, err := json.Marshal(result.Report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET report = ?, status = ?, model = ?, input_tokens = ?, output_tokens = ?, error = '', updated_at = ? WHERE id = ?`,
		string(reportJSON), string(model.AuditStatusComplete), result.Model,
		result.InputTokens, result.OutputTokens, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete audit %s", id)
	}
	return checkRowsAffected(res, "audit", id)
}

func (s *SQLiteStore) FailAudit(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audits SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.AuditStatusFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail audit %s", id)
	}
	return checkRowsAffected(res, "audit", id)
}

func (s *SQLiteStore) GetAudit(ctx context.Context, id string) (*model.Audit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM audits WHERE id = ?`,
		id,
	)
	a, err := scanAudit(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get audit %s", id)
	}
	return a, nil
}

func (s *SQLiteStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audits")
	}
	defer rows.Close() //nolint:errcheck

	var audits []model.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list audits")
		}
		audits = append(audits, *a)
	}
	return audits, eris.Wrap(rows.Err(), "sqlite: list audits rows")
}

func (s *SQLiteStore) GetCachedPage(ctx context.Context, url string) (*model.ScrapeCache, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, page, scraped_at, expires_at FROM scrape_cache
		 WHERE url = ? AND expires_at > ?`,
		url, time.Now().UTC(),
	)

	var sc model.ScrapeCache
	var pageJSON string
	err := row.Scan(&sc.ID, &sc.URL, &pageJSON, &sc.ScrapedAt, &sc.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached page")
	}
	if err := json.Unmarshal([]byte(pageJSON), &sc.Page); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cached page")
	}
	return &sc, nil
}

func (s *SQLiteStore) SetCachedPage(ctx context.Context, entry model.ScrapeCache) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	pageJSON, err := json.Marshal(entry.Page)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal page")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_cache (id, url, page, scraped_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO UPDATE SET page = excluded.page, scraped_at = excluded.scraped_at, expires_at = excluded.expires_at`,
		entry.ID, entry.URL, string(pageJSON), entry.ScrapedAt.UTC(), entry.ExpiresAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: set cached page")
}

func (s *SQLiteStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scrape_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired pages")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAudit(row scannable) (*model.Audit, error) {
	var a model.Audit
	var reportJSON sql.NullString

	err := row.Scan(&a.ID, &a.URL, &a.Status, &reportJSON, &a.Error, &a.Model,
		&a.InputTokens, &a.OutputTokens, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan audit")
	}
	if reportJSON.Valid && reportJSON.String != "" && reportJSON.String != "null" {
		a.Report = &model.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), a.Report); err != nil {
			return nil, eris.Wrap(err, "unmarshal report")
		}
	}
	return &a, nil
}
