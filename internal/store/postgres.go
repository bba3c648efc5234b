package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_audit":         `INSERT INTO audits (id, url, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_audit_status":  `UPDATE audits SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_audit":            `SELECT ` + auditColumns + ` FROM audits WHERE id = $1`,
	"get_cached_page":      `SELECT id, url, page, scraped_at, expires_at FROM scrape_cache WHERE url = $1 AND expires_at > now()`,
	"delete_expired_pages": `DELETE FROM scrape_cache WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audits (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	report        JSONB,
	error         TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_audits_status ON audits(status);
CREATE INDEX IF NOT EXISTS idx_audits_url ON audits(url);
CREATE INDEX IF NOT EXISTS idx_audits_created_at ON audits(created_at);

CREATE TABLE IF NOT EXISTS scrape_cache (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url        TEXT NOT NULL UNIQUE,
	page       JSONB NOT NULL,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scrape_cache_expires_at ON scrape_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateAudit(ctx context.Context, url string) (*model.Audit, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audits (id, url, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, url, string(model.AuditStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert audit")
	}

	return &model.Audit{
		ID:        id,
		URL:       url,
		Status:    model.AuditStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateAuditStatus(ctx context.Context, id string, status model.AuditStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audits SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update audit status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "audit %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteAudit(ctx context.Context, id string, result *model.AuditResult) error {
	if result == nil {
		return eris.New("postgres: complete audit: nil result")
	}
	reportJSON, err := json.Marshal(result.Report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE audits SET report = $1, status = $2, model = $3, input_tokens = $4, output_tokens = $5, error = '', updated_at = $6 WHERE id = $7`,
		reportJSON, string(model.AuditStatusComplete), result.Model,
		result.InputTokens, result.OutputTokens, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete audit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "audit %s", id)
	}
	return nil
}

func (s *PostgresStore) FailAudit(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE audits SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.AuditStatusFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail audit %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "audit %s", id)
	}
	return nil
}

func (s *PostgresStore) GetAudit(ctx context.Context, id string) (*model.Audit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auditColumns+` FROM audits WHERE id = $1`,
		id,
	)
	a, err := scanPgAudit(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get audit %s", id)
	}
	return a, nil
}

func (s *PostgresStore) ListAudits(ctx context.Context, filter AuditFilter) ([]model.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, argIdx)
		args = append(args, filter.URL)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audits")
	}
	defer rows.Close()

	var audits []model.Audit
	for rows.Next() {
		a, err := scanPgAudit(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list audits")
		}
		audits = append(audits, *a)
	}
	return audits, eris.Wrap(rows.Err(), "postgres: list audits rows")
}

func (s *PostgresStore) GetCachedPage(ctx context.Context, url string) (*model.ScrapeCache, error) {
	var sc model.ScrapeCache
	var pageJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, url, page, scraped_at, expires_at FROM scrape_cache
		 WHERE url = $1 AND expires_at > now()`,
		url,
	).Scan(&sc.ID, &sc.URL, &pageJSON, &sc.ScrapedAt, &sc.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached page")
	}
	if err := json.Unmarshal(pageJSON, &sc.Page); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cached page")
	}
	return &sc, nil
}

func (s *PostgresStore) SetCachedPage(ctx context.Context, entry model.ScrapeCache) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	pageJSON, err := json.Marshal(entry.Page)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal page")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_cache (id, url, page, scraped_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE SET page = $3, scraped_at = $4, expires_at = $5`,
		entry.ID, entry.URL, pageJSON, entry.ScrapedAt.UTC(), entry.ExpiresAt.UTC(),
	)
	return eris.Wrap(err, "postgres: set cached page")
}

func (s *PostgresStore) DeleteExpiredPages(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrape_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired pages")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgAudit(row pgx.Row) (*model.Audit, error) {
	var a model.Audit
	var status string
	var reportJSON []byte

	err := row.Scan(&a.ID, &a.URL, &status, &reportJSON, &a.Error, &a.Model,
		&a.InputTokens, &a.OutputTokens, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan audit")
	}
	a.Status = model.AuditStatus(status)
	if len(reportJSON) > 0 && string(reportJSON) != "null" {
		a.Report = &model.Report{}
		if err := json.Unmarshal(reportJSON, a.Report); err != nil {
			return nil, eris.Wrap(err, "unmarshal report")
		}
	}
	return &a, nil
}
