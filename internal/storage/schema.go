// To keep the sinks generic, the index schema types live here so both the
// config package and every backend can import them without cycles.
package storage

import (
	"fmt"
	"strings"

	"geoingest/internal/transformer"
)

// Field types accepted in an IndexSpec. They follow Elasticsearch mapping
// type names; SQL backends translate them to column types.
const (
	TypeDate     = "date"
	TypeGeoPoint = "geo_point"
	TypeKeyword  = "keyword"
	TypeText     = "text"
	TypeFloat    = "float"
	TypeDouble   = "double"
	TypeLong     = "long"
	TypeInteger  = "integer"
)

// IndexSpec is the destination schema for one dataset.
type IndexSpec struct {
	Name string `json:"name"`

	// Shards defaults to 1. Replicas defaults to 0 (single-node friendly).
	Shards   int `json:"shards,omitempty"`
	Replicas int `json:"replicas,omitempty"`

	Fields []FieldMapping `json:"fields"`
}

type FieldMapping struct {
	Name string `json:"name"`
	Type string `json:"type"`
	// Format is the date format string for date fields.
	Format string `json:"format,omitempty"`
}

// Relational column families. Backends map them to their own type names.
const (
	SQLText   = "text"
	SQLDouble = "double"
	SQLBigint = "bigint"
)

// SQLKind maps a mapping type to a column family. Dates stay text so the
// source format survives unchanged.
func SQLKind(fieldType string) string {
	switch fieldType {
	case TypeFloat, TypeDouble, TypeGeoPoint:
		return SQLDouble
	case TypeLong, TypeInteger:
		return SQLBigint
	}
	return SQLText
}

// ValidFieldType reports whether t is a supported mapping type.
func ValidFieldType(t string) bool {
	switch t {
	case TypeDate, TypeGeoPoint, TypeKeyword, TypeText, TypeFloat, TypeDouble, TypeLong, TypeInteger:
		return true
	}
	return false
}

// Validate checks the schema in isolation.
func (s IndexSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("index name is empty")
	}
	if s.Shards < 0 || s.Replicas < 0 {
		return fmt.Errorf("index %s: shards/replicas must be >= 0", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("index %s: field with empty name", s.Name)
		}
		if !ValidFieldType(f.Type) {
			return fmt.Errorf("index %s: field %s: unsupported type %q", s.Name, f.Name, f.Type)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("index %s: duplicate field %s", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Field returns the mapping for name.
func (s IndexSpec) Field(name string) (FieldMapping, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMapping{}, false
}

// ShardCount applies the default.
func (s IndexSpec) ShardCount() int {
	if s.Shards <= 0 {
		return 1
	}
	return s.Shards
}

// Column is one relational column derived from an IndexSpec. A geo_point
// field becomes two columns, <name>_lon and <name>_lat.
type Column struct {
	Name  string
	Field string
	Type  string
	part  int // -1 whole value, 0 longitude, 1 latitude
}

// Columns flattens the schema for SQL backends, in field order.
func (s IndexSpec) Columns() []Column {
	out := make([]Column, 0, len(s.Fields)+2)
	for _, f := range s.Fields {
		if f.Type == TypeGeoPoint {
			out = append(out,
				Column{Name: f.Name + "_lon", Field: f.Name, Type: TypeDouble, part: 0},
				Column{Name: f.Name + "_lat", Field: f.Name, Type: TypeDouble, part: 1},
			)
			continue
		}
		out = append(out, Column{Name: f.Name, Field: f.Name, Type: f.Type, part: -1})
	}
	return out
}

// Value extracts the column value from doc; nil when the field is absent.
func (c Column) Value(doc transformer.Document) any {
	v, ok := doc[c.Field]
	if !ok {
		return nil
	}
	if c.part < 0 {
		return v
	}
	g, ok := v.(transformer.GeoPoint)
	if !ok {
		return nil
	}
	return g[c.part]
}

// ColumnNames returns the names of cols.
func ColumnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Rows converts docs into positional rows for cols.
func Rows(cols []Column, docs []transformer.Document) [][]any {
	rows := make([][]any, len(docs))
	for i, d := range docs {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = c.Value(d)
		}
		rows[i] = row
	}
	return rows
}

// ChunkRows splits rows so that no chunk binds more than maxParams
// placeholders. Drivers cap the number of parameters per statement.
func ChunkRows(rows [][]any, width, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := len(rows)
	if width > 0 && maxParams > 0 {
		per = maxParams / width
		if per < 1 {
			per = 1
		}
	}
	out := make([][][]any, 0, len(rows)/per+1)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		out = append(out, rows[start:end])
	}
	return out
}
