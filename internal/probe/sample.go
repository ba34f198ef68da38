package probe

import (
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"geoingest/internal/transformer"
)

// Delimiters tried by detectDelimiter, in tie-break order.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// detectDelimiter picks the candidate that splits the sample into the most
// records with the header's field count. A candidate must yield at least two
// header fields. Falls back to ','.
func detectDelimiter(sample []byte) rune {
	best, bestScore := ',', 0
	for _, d := range candidateDelimiters {
		headers, rows, _ := readCSVSample(sample, d)
		if len(headers) < 2 {
			continue
		}
		score := 1 + len(rows)
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

// readCSVSample parses a sample into a header row and the data rows.
//
// Best-effort:
//   - records with the wrong field count are skipped
//   - the sample is expected to already be cut to a newline boundary
func readCSVSample(data []byte, delimiter rune) ([]string, [][]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headers, err := r.Read()
	if err != nil {
		return nil, nil, err
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(headers[i], "\uFEFF"))
	}

	rows := make([][]string, 0, 256)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Odd rows are not fatal for a probe.
			continue
		}
		if len(rec) != len(headers) {
			continue
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	return headers, rows, nil
}

// timeLayout pairs a Go layout with the equivalent Elasticsearch date format.
// An empty esFormat means the destination's default parser accepts it.
type timeLayout struct {
	layout   string
	esFormat string
}

var timeLayouts = []timeLayout{
	{layout: "2006-01-02 15:04:05", esFormat: "yyyy-MM-dd HH:mm:ss"},
	{layout: time.RFC3339Nano},
	{layout: time.RFC3339},
	{layout: "2006-01-02T15:04:05"},
	{layout: "2006-01-02", esFormat: "yyyy-MM-dd"},
	{layout: "02/01/2006 15:04:05", esFormat: "dd/MM/yyyy HH:mm:ss"},
	{layout: "02/01/2006", esFormat: "dd/MM/yyyy"},
}

// matchLayout returns the first layout that parses v.
func matchLayout(v string) (timeLayout, bool) {
	for _, l := range timeLayouts {
		if _, err := time.Parse(l.layout, v); err == nil {
			return l, true
		}
	}
	return timeLayout{}, false
}

// parseGeoPair reports whether v is "a, b" with two finite numbers that fit
// some coordinate order, and whether the order must be lon,lat.
func parseGeoPair(v string) (lonFirst bool, ok bool) {
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return false, false
	}
	a, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || math.IsNaN(a) || math.IsNaN(b) {
		return false, false
	}
	switch {
	case math.Abs(a) <= 90 && math.Abs(b) <= 180:
		return false, true
	case math.Abs(b) <= 90 && math.Abs(a) <= 180:
		return true, true
	default:
		return false, false
	}
}

// column holds the inference state of one sampled column.
type column struct {
	header string
	name   string
	kind   string
	order  string // geo_point only
	format string // timestamp only
}

// inferColumns picks a transformer field kind per column. Preference, most
// specific first: int, float, geo_point, timestamp, string. A column with no
// non-empty sample value is a string.
func inferColumns(headers []string, rows [][]string) []column {
	out := make([]column, len(headers))
	for col, h := range headers {
		c := column{header: h, name: truncateFieldName(normalizeFieldName(h)), kind: transformer.KindString}
		if c.name == "" {
			c.name = "col_" + strconv.Itoa(col)
		}

		var (
			seen     bool
			allInt   = true
			allFloat = true
			allGeo   = true
			allTS    = true
			lonFirst bool
			layout   timeLayout
		)
		for _, r := range rows {
			v := r[col]
			if v == "" {
				continue
			}
			if !seen {
				layout, _ = matchLayout(v)
			}
			seen = true

			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if allGeo {
				lf, ok := parseGeoPair(v)
				if !ok {
					allGeo = false
				}
				lonFirst = lonFirst || lf
			}
			if allTS {
				if _, err := time.Parse(layout.layout, v); layout.layout == "" || err != nil {
					allTS = false
				}
			}
		}

		if seen {
			switch {
			case allInt:
				c.kind = transformer.KindInt
			case allFloat:
				c.kind = transformer.KindFloat
			case allGeo:
				c.kind = transformer.KindGeoPoint
				c.order = transformer.OrderLatLon
				if lonFirst {
					c.order = transformer.OrderLonLat
				}
			case allTS:
				c.kind = transformer.KindTimestamp
				c.format = layout.esFormat
			}
		}
		out[col] = c
	}
	return dedupeNames(out)
}

// dedupeNames suffixes repeated normalized names with _2, _3, ...
func dedupeNames(cols []column) []column {
	seen := make(map[string]int, len(cols))
	for i := range cols {
		n := cols[i].name
		seen[n]++
		if k := seen[n]; k > 1 {
			cols[i].name = n + "_" + strconv.Itoa(k)
		}
	}
	return cols
}

// truncateFieldName enforces identifier length limits while preserving UTF-8
// validity.
func truncateFieldName(s string) string {
	const maxLen = 63
	if len(s) <= maxLen {
		return s
	}
	b := []byte(s)
	cut := maxLen
	for cut > 0 && !utf8.Valid(b[:cut]) {
		cut--
	}
	if cut <= 0 {
		return s[:maxLen]
	}
	return string(b[:cut])
}

// normalizeFieldName converts an arbitrary header into a lowercase
// identifier usable as a field, column or index name.
func normalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		}
	}
	return strings.Trim(b.String(), "_")
}
