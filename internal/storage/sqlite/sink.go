// Package sqlite stores documents in a SQLite table named after the index.
//
// SQLite has no geo type, so geo_point fields are flattened into
// <name>_lon and <name>_lat REAL columns (see storage.IndexSpec.Columns).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

// maxParams is SQLITE_MAX_VARIABLE_NUMBER for modernc.org/sqlite.
const maxParams = 32766

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		return New(ctx, cfg.DSN)
	})
}

type Sink struct {
	db *sql.DB

	mu     sync.RWMutex
	tables map[string][]storage.Column
}

func New(ctx context.Context, dsn string) (*Sink, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: storage.dsn is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Unavailable("sqlite ping", err)
	}
	return &Sink{db: db, tables: map[string][]storage.Column{}}, nil
}

func (s *Sink) Close() { _ = s.db.Close() }

func (s *Sink) RecreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	cols := spec.Columns()
	if _, err := s.db.ExecContext(ctx, buildDropSQL(spec.Name)); err != nil {
		return storage.Classify("drop table "+spec.Name, err)
	}
	if _, err := s.db.ExecContext(ctx, buildCreateSQL(spec.Name, cols)); err != nil {
		return storage.Classify("create table "+spec.Name, err)
	}

	s.mu.Lock()
	s.tables[spec.Name] = cols
	s.mu.Unlock()
	return nil
}

// SubmitBatch inserts docs in one transaction using multi-row INSERTs.
func (s *Sink) SubmitBatch(ctx context.Context, index string, docs []transformer.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	s.mu.RLock()
	cols, ok := s.tables[index]
	s.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("sqlite: table %s was not created by this sink", index)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storage.Unavailable("sqlite begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	names := storage.ColumnNames(cols)
	for _, chunk := range storage.ChunkRows(storage.Rows(cols, docs), len(cols), maxParams) {
		q, args := buildInsertSQL(index, names, chunk)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			if storage.IsConnError(err) {
				return 0, storage.Unavailable("insert into "+index, err)
			}
			return 0, fmt.Errorf("insert into %s: %w", index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storage.Unavailable("sqlite commit", err)
	}
	return len(docs), nil
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func columnType(fieldType string) string {
	switch storage.SQLKind(fieldType) {
	case storage.SQLDouble:
		return "REAL"
	case storage.SQLBigint:
		return "INTEGER"
	}
	return "TEXT"
}

func buildDropSQL(table string) string {
	return "DROP TABLE IF EXISTS " + sqlIdent(table) + ";"
}

func buildCreateSQL(table string, cols []storage.Column) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), columnType(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n);", sqlIdent(table), strings.Join(parts, ",\n  "))
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}
