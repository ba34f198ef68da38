// Package mssql stores documents in a SQL Server table named after the index.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/microsoft/go-mssqldb"

	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

// SQL Server accepts at most 2100 parameters per statement.
const maxParams = 2000

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(ctx, cfg.DSN)
	})
}

// execer is the subset of *sql.DB / *sql.Tx the sink needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Sink struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string][]storage.Column
}

func New(ctx context.Context, dsn string) (*Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mssql: storage.dsn is required")
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable("mssql ping", err)
	}
	return &Sink{db: db, tables: map[string][]storage.Column{}}, nil
}

func (s *Sink) Close() { _ = s.db.Close() }

func (s *Sink) RecreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	cols := spec.Columns()
	if err := recreate(ctx, s.db, spec.Name, cols); err != nil {
		return err
	}
	s.mu.Lock()
	s.tables[spec.Name] = cols
	s.mu.Unlock()
	return nil
}

func recreate(ctx context.Context, db execer, table string, cols []storage.Column) error {
	if _, err := db.ExecContext(ctx, buildDropSQL(table)); err != nil {
		return storage.Classify("drop table "+table, err)
	}
	if _, err := db.ExecContext(ctx, buildCreateSQL(table, cols)); err != nil {
		return storage.Classify("create table "+table, err)
	}
	return nil
}

// SubmitBatch inserts docs in one transaction, chunked under the parameter
// limit.
func (s *Sink) SubmitBatch(ctx context.Context, index string, docs []transformer.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	s.mu.RLock()
	cols, ok := s.tables[index]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("mssql: table %s was not created by this sink", index)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Unavailable("mssql begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertRows(ctx, tx, index, cols, docs); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Unavailable("mssql commit", err)
	}
	return len(docs), nil
}

func insertRows(ctx context.Context, db execer, table string, cols []storage.Column, docs []transformer.Document) error {
	names := storage.ColumnNames(cols)
	for _, chunk := range storage.ChunkRows(storage.Rows(cols, docs), len(cols), maxParams) {
		q, args := buildInsertSQL(table, names, chunk)
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			if storage.IsConnError(err) {
				return storage.Unavailable("insert into "+table, err)
			}
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

func msIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func columnType(fieldType string) string {
	switch storage.SQLKind(fieldType) {
	case storage.SQLDouble:
		return "FLOAT"
	case storage.SQLBigint:
		return "BIGINT"
	}
	return "NVARCHAR(MAX)"
}

func buildDropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + msIdent(table) + ";"
}

func buildCreateSQL(table string, cols []storage.Column) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s %s NULL", msIdent(c.Name), columnType(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", msIdent(table), strings.Join(parts, ",\n  "))
}

// buildInsertSQL uses @pN placeholders numbered across all rows.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(msIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(msIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}
