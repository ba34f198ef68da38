package csv

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"geoingest/internal/config"
	"geoingest/internal/transformer"
)

func collect(t *testing.T, input string, opt config.Options) ([]transformer.RawRow, []int, error) {
	t.Helper()
	out := make(chan *transformer.Row, 16)
	var errLines []int
	errCh := make(chan error, 1)
	go func() {
		errCh <- StreamCSVRows(context.Background(), io.NopCloser(strings.NewReader(input)), opt, out, func(line int, err error) {
			errLines = append(errLines, line)
		})
		close(out)
	}()

	var rows []transformer.RawRow
	for r := range out {
		cp := make(transformer.RawRow, len(r.Fields))
		for k, v := range r.Fields {
			cp[k] = v
		}
		rows = append(rows, cp)
		r.Free()
	}
	return rows, errLines, <-errCh
}

func TestStreamCSVRows_SemicolonWithHeaderMap(t *testing.T) {
	t.Parallel()

	input := "\uFEFFTYPE ; SOUSTYPE;geo_point_2d\nGraffitis; Tags ;48.85, 2.35\nPropreté;Dépôt\n"
	rows, errs, err := collect(t, input, config.Options{
		"comma":      ";",
		"header_map": map[string]any{"TYPE": "type"},
	})
	if err != nil {
		t.Fatalf("StreamCSVRows: %v", err)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors at %v", errs)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if rows[0]["type"] != "Graffitis" || rows[0]["SOUSTYPE"] != "Tags" || rows[0]["geo_point_2d"] != "48.85, 2.35" {
		t.Fatalf("row0=%v", rows[0])
	}
	if _, ok := rows[1]["geo_point_2d"]; ok {
		t.Fatalf("short record must not carry trailing columns: %v", rows[1])
	}
}

func TestStreamCSVRows_MalformedRecordIsSkipped(t *testing.T) {
	t.Parallel()

	input := "a,b\n1,2\n\"unterminated,3\n"
	rows, errs, err := collect(t, input, nil)
	if err != nil {
		t.Fatalf("StreamCSVRows: %v", err)
	}
	if len(rows) != 1 || len(errs) != 1 {
		t.Fatalf("rows=%d errs=%v, want 1 row and 1 error", len(rows), errs)
	}
}

func TestStreamCSVRows_NoHeaderUsesColumnsOption(t *testing.T) {
	t.Parallel()

	rows, _, err := collect(t, "x\ty\n", config.Options{
		"has_header": false,
		"comma":      `\t`,
		"columns":    []any{"first", "second"},
	})
	if err != nil {
		t.Fatalf("StreamCSVRows: %v", err)
	}
	if rows[0]["first"] != "x" || rows[0]["second"] != "y" {
		t.Fatalf("row=%v", rows[0])
	}
}

func TestStreamCSVRows_EmptyFile(t *testing.T) {
	t.Parallel()

	rows, _, err := collect(t, "", nil)
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v, want none", rows, err)
	}
}

func TestStreamCSVRows_Latin1(t *testing.T) {
	t.Parallel()

	enc, err := charmap.ISO8859_1.NewEncoder().String("city\nSaint-Étienne\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rows, _, err := collect(t, enc, config.Options{"encoding": "iso-8859-1"})
	if err != nil {
		t.Fatalf("StreamCSVRows: %v", err)
	}
	if rows[0]["city"] != "Saint-Étienne" {
		t.Fatalf("city=%q", rows[0]["city"])
	}
}

func TestStreamCSVRows_UnknownEncoding(t *testing.T) {
	t.Parallel()

	_, _, err := collect(t, "a\n1\n", config.Options{"encoding": "klingon"})
	if err == nil || !strings.Contains(err.Error(), "unknown encoding") {
		t.Fatalf("err=%v, want unknown encoding", err)
	}
}

func TestStreamCSVRows_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan *transformer.Row) // unbuffered and never read
	err := StreamCSVRows(ctx, io.NopCloser(bytes.NewBufferString("a\n1\n2\n")), nil, out, nil)
	if err != context.Canceled {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
