// Package postgres stores documents in a Postgres table named after the
// index, loading each batch with COPY.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(ctx, cfg.DSN)
	})
}

type Sink struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	tables map[string][]storage.Column
}

// New creates a pool and checks connectivity.
func New(ctx context.Context, dsn string) (*Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: storage.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Unavailable("postgres ping", err)
	}
	return &Sink{pool: pool, tables: map[string][]storage.Column{}}, nil
}

func (s *Sink) Close() { s.pool.Close() }

// RecreateIndex drops and creates the table inside one transaction.
func (s *Sink) RecreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	cols := spec.Columns()
	stmts := buildRecreateSQL(spec.Name, cols)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storage.Unavailable("postgres begin", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range stmts {
		if _, err := tx.Exec(ctx, q); err != nil {
			return storage.Classify("recreate table "+spec.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.Classify("recreate table "+spec.Name, err)
	}

	s.mu.Lock()
	s.tables[spec.Name] = cols
	s.mu.Unlock()
	return nil
}

// SubmitBatch copies docs into the table. COPY is all-or-nothing.
func (s *Sink) SubmitBatch(ctx context.Context, index string, docs []transformer.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	s.mu.RLock()
	cols, ok := s.tables[index]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("postgres: table %s was not created by this sink", index)
	}

	n, err := s.pool.CopyFrom(
		ctx,
		tableIdentifier(index),
		storage.ColumnNames(cols),
		pgx.CopyFromRows(storage.Rows(cols, docs)),
	)
	if err != nil {
		if storage.IsConnError(err) {
			return int(n), storage.Unavailable("copy into "+index, err)
		}
		return int(n), fmt.Errorf("copy into %s: %w", index, err)
	}
	return int(n), nil
}

func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// splitQualifiedName splits "schema.table"; other names have no schema.
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func tableIdentifier(name string) pgx.Identifier {
	if schema, table := splitQualifiedName(name); schema != "" {
		return pgx.Identifier{schema, table}
	}
	return pgx.Identifier{name}
}

func quotedTable(name string) string {
	return tableIdentifier(name).Sanitize()
}

func columnType(fieldType string) string {
	switch storage.SQLKind(fieldType) {
	case storage.SQLDouble:
		return "double precision"
	case storage.SQLBigint:
		return "bigint"
	}
	return "text"
}

// buildRecreateSQL returns the statements that reset a table: an optional
// CREATE SCHEMA for qualified names, DROP TABLE IF EXISTS and CREATE TABLE.
func buildRecreateSQL(name string, cols []storage.Column) []string {
	var out []string
	if schema, _ := splitQualifiedName(name); schema != "" {
		out = append(out, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, pgIdent(schema)))
	}
	out = append(out, fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, quotedTable(name)))

	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s %s", pgIdent(c.Name), columnType(c.Type)))
	}
	out = append(out, fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", quotedTable(name), strings.Join(parts, ",\n  ")))
	return out
}
