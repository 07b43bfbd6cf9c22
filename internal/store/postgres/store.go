// Package postgres provides the Postgres-backed document store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mnbossa/agridocs/internal/docs"
)

// Config controls the Postgres connection pool used for document rows.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store implements docs.Store on top of a pgx pool. Per-URL write
// serialization comes from the unique constraint on url: concurrent
// upserts to the same URL resolve last-committed-wins, while writes to
// different URLs proceed independently.
type Store struct {
	pool queryExecCloser
}

// Schema for the documents table:
//
//	CREATE TABLE documents (
//	    url        TEXT PRIMARY KEY,
//	    title      TEXT NOT NULL,
//	    doc_type   TEXT,
//	    date       TEXT,
//	    excerpt    TEXT,
//	    indexed_at TIMESTAMPTZ NOT NULL
//	);
const upsertQuery = `
INSERT INTO documents (url, title, doc_type, date, excerpt, indexed_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	doc_type = EXCLUDED.doc_type,
	date = EXCLUDED.date,
	excerpt = EXCLUDED.excerpt,
	indexed_at = EXCLUDED.indexed_at`

const listQuery = `
SELECT url, title, doc_type, date, excerpt, indexed_at
FROM documents
ORDER BY indexed_at DESC`

// New creates a Store backed by a new pgx pool.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for testing).
func NewWithPool(pool queryExecCloser) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert writes the document, overwriting everything except the URL when
// the row already exists. Autocommit makes the row durable before return.
func (s *Store) Upsert(ctx context.Context, doc docs.Document) error {
	if doc.URL == "" {
		return fmt.Errorf("document url is required")
	}
	args := []any{
		doc.URL,
		doc.Title,
		nullable(doc.DocType),
		nullable(doc.Date),
		nullable(doc.Excerpt),
		doc.IndexedAt,
	}
	if _, err := s.pool.Exec(ctx, upsertQuery, args...); err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}
	return nil
}

// ListAll returns every document, most recently indexed first.
func (s *Store) ListAll(ctx context.Context) ([]docs.Document, error) {
	rows, err := s.pool.Query(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []docs.Document
	for rows.Next() {
		var (
			d                      docs.Document
			docType, date, excerpt *string
		)
		if err := rows.Scan(&d.URL, &d.Title, &docType, &date, &excerpt, &d.IndexedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.DocType = deref(docType)
		d.Date = deref(date)
		d.Excerpt = deref(excerpt)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
