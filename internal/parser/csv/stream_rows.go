// Package csv streams delimited text files into pooled transformer rows keyed
// by column name.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"geoingest/internal/config"
	"geoingest/internal/transformer"
)

// Decode wraps r so it yields UTF-8. An empty name or any UTF-8 label returns
// r unchanged. A leading byte-order mark selects UTF-8/16 regardless of name.
func Decode(r io.Reader, name string) (io.Reader, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return r, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	if enc == unicode.UTF8 {
		return r, nil
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// StreamCSVRows reads src and sends one *transformer.Row per record to out.
// Row.Fields is keyed by header name (after header_map renames), or by the
// "columns" option when has_header is false.
//
// Options: comma, has_header, trim_space, lazy_quotes, encoding, header_map,
// columns.
//
// Malformed records are reported to onErr and skipped. A record shorter than
// the header simply lacks the trailing columns. On ctx cancellation in-flight
// rows are dropped, not returned to the pool, and ctx.Err() is returned.
func StreamCSVRows(
	ctx context.Context,
	src io.ReadCloser,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	defer src.Close()

	hasHeader := opt.Bool("has_header", true)
	trim := opt.Bool("trim_space", true)
	hm := opt.StringMap("header_map")

	in, err := Decode(src, opt.String("encoding", ""))
	if err != nil {
		return err
	}

	cr := csv.NewReader(in)
	cr.Comma = opt.Rune("comma", ',')
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var line int
	readRec := func() ([]string, error) {
		line++
		return cr.Read()
	}

	var names []string
	if hasHeader {
		hdr, err := readRec()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if onErr != nil {
				onErr(line, fmt.Errorf("read header: %w", err))
			}
			return fmt.Errorf("read header: %w", err)
		}
		names = headerNames(hdr, hm)
	} else {
		names = opt.Strings("columns")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, err := readRec()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return fmt.Errorf("csv read line %d: %w", line, err)
			}
			if onErr != nil {
				onErr(line, fmt.Errorf("csv read: %w", err))
			}
			continue
		}

		row := transformer.GetRow(len(names))
		row.Line = line
		for i, v := range rec {
			name := columnName(names, i)
			if name == "" {
				continue
			}
			if trim {
				v = strings.TrimSpace(v)
			}
			row.Fields[name] = v
		}

		select {
		case out <- row:
		case <-ctx.Done():
			row.Drop()
			return ctx.Err()
		}
	}
}

// headerNames trims names, strips a UTF-8 BOM from the first one and applies
// header_map renames. The record slice is reused by the reader, so names are
// copied out.
func headerNames(hdr []string, hm map[string]string) []string {
	out := make([]string, len(hdr))
	for i, h := range hdr {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		if mapped, ok := hm[h]; ok {
			h = mapped
		}
		out[i] = strings.Clone(h)
	}
	return out
}

// columnName returns the name of column i, or "" for extra columns when
// names came from a header. Without any names, columns are "0", "1", ...
func columnName(names []string, i int) string {
	if len(names) == 0 {
		return strconv.Itoa(i)
	}
	if i < len(names) {
		return names[i]
	}
	return ""
}
