// Package postgres implements a Postgres repository using pgx v5. Bulk loads
// go through the COPY protocol; ad-hoc reads for the validate and report
// stages use pooled queries.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chartetl/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN    string // connection string for pgxpool
	Schema string // schema qualifier for all tables; defaults to "public"
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool *pgxpool.Pool
	cfg  Config
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, cfg: cfg}, closeFn, nil
}

// CopyFrom bulk-inserts rows into the named table via the COPY protocol.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return r.pool.CopyFrom(ctx, r.ident(table), columns, pgx.CopyFromRows(rows))
}

// Query runs a read statement written with '?' placeholders and materializes
// the full result set.
func (r *Repository) Query(ctx context.Context, sql string, args ...any) ([][]any, error) {
	rows, err := r.pool.Query(ctx, storage.Rebind(sql), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows: %w", err)
	}
	return out, nil
}

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := r.pool.Exec(ctx, storage.Rebind(sql), args...)
	return err
}

// ident builds a schema-qualified pgx.Identifier for the given table.
func (r *Repository) ident(table string) pgx.Identifier {
	if strings.Contains(table, ".") {
		parts := strings.Split(table, ".")
		id := make(pgx.Identifier, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				id = append(id, p)
			}
		}
		return id
	}
	return pgx.Identifier{r.cfg.Schema, table}
}

// Qualify returns the quoted, schema-qualified name for the given table,
// suitable for splicing into generated SQL.
func (r *Repository) Qualify(table string) string {
	if strings.Contains(table, ".") {
		return quoteFQN(table)
	}
	return quoteIdent(r.cfg.Schema) + "." + quoteIdent(table)
}

// quoteIdent quotes a single identifier segment for Postgres, escaping any
// embedded double quotes.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// quoteFQN quotes a possibly schema-qualified name like "public.tracks" to
// `"public"."tracks"`. Empty segments are ignored.
func quoteFQN(f string) string {
	parts := strings.Split(f, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, quoteIdent(p))
	}
	return strings.Join(out, ".")
}
