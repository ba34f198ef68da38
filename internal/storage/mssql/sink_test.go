package mssql

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

type fakeExec struct {
	queries []string
	nargs   []int
	err     error
}

func (f *fakeExec) ExecContext(_ context.Context, q string, args ...any) (sql.Result, error) {
	f.queries = append(f.queries, q)
	f.nargs = append(f.nargs, len(args))
	return nil, f.err
}

var spec = storage.IndexSpec{Name: "dansmarue", Fields: []storage.FieldMapping{
	{Name: "type", Type: storage.TypeKeyword},
	{Name: "location", Type: storage.TypeGeoPoint},
}}

func TestBuildInsertSQL_NumbersPlaceholders(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("dansmarue", []string{"a", "b"}, [][]any{{1, 2}, {3, 4}})
	want := "INSERT INTO [dansmarue] ([a], [b]) VALUES (@p1, @p2), (@p3, @p4);"
	if q != want {
		t.Fatalf("q=%s\nwant %s", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("args=%v", args)
	}
}

func TestRecreate_DropsThenCreates(t *testing.T) {
	t.Parallel()

	f := &fakeExec{}
	if err := recreate(context.Background(), f, spec.Name, spec.Columns()); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if len(f.queries) != 2 || f.queries[0] != "DROP TABLE IF EXISTS [dansmarue];" {
		t.Fatalf("queries=%v", f.queries)
	}
	for _, want := range []string{"[type] NVARCHAR(MAX) NULL", "[location_lon] FLOAT NULL", "[location_lat] FLOAT NULL"} {
		if !strings.Contains(f.queries[1], want) {
			t.Fatalf("create missing %q:\n%s", want, f.queries[1])
		}
	}
}

func TestRecreate_RejectedSchema(t *testing.T) {
	t.Parallel()

	f := &fakeExec{err: errors.New("Column, parameter, or variable #2: Cannot find data type")}
	err := recreate(context.Background(), f, spec.Name, spec.Columns())
	if !errors.Is(err, storage.ErrSchemaRejected) {
		t.Fatalf("err=%v, want ErrSchemaRejected", err)
	}
}

func TestInsertRows_ChunksUnderParameterLimit(t *testing.T) {
	t.Parallel()

	docs := make([]transformer.Document, 1500)
	for i := range docs {
		docs[i] = transformer.Document{"type": "Graffitis", "location": transformer.NewGeoPoint(2.35, 48.85)}
	}
	f := &fakeExec{}
	if err := insertRows(context.Background(), f, spec.Name, spec.Columns(), docs); err != nil {
		t.Fatalf("insertRows: %v", err)
	}
	// 3 columns per row: 666 rows per statement.
	if len(f.queries) != 3 {
		t.Fatalf("statements=%d, want 3", len(f.queries))
	}
	for _, n := range f.nargs {
		if n > 2100 {
			t.Fatalf("statement binds %d parameters", n)
		}
	}
}
