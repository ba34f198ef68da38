// Package reference holds read-only lookup tables used to enrich rows.
//
// Tables are loaded once at startup and shared by every file ingestor; they
// are never mutated afterwards.
package reference

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"geoingest/internal/transformer"
)

// Table maps a natural key onto its enrichment data.
type Table map[string]transformer.ReferenceEntity

// Lookup implements transformer.ReferenceTable.
func (t Table) Lookup(key string) (transformer.ReferenceEntity, bool) {
	e, ok := t[key]
	return e, ok
}

// Keys returns the table keys in sorted order.
func (t Table) Keys() []string {
	out := make([]string, 0, len(t))
	for k := range t {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var builtins = map[string]Table{
	"madrid-stations": MadridStations,
}

// Builtin returns a compiled-in table by name.
func Builtin(name string) (Table, bool) {
	t, ok := builtins[name]
	return t, ok
}

// BuiltinNames lists the compiled-in table names.
func BuiltinNames() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LoadFile reads a table from a JSON object of the form
//
//	{"<key>": {"name": "...", "location": [lon, lat]}}
func LoadFile(path string) (Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode reference table %s: %w", path, err)
	}
	for k, e := range t {
		if !e.Location.Valid() {
			return nil, fmt.Errorf("reference table %s: key %q: invalid location %v", path, k, e.Location)
		}
	}
	return t, nil
}

// Open resolves a table either from the built-in registry or from a file.
// A path wins over a name when both are set.
func Open(name, path string) (Table, error) {
	if path != "" {
		return LoadFile(path)
	}
	t, ok := Builtin(name)
	if !ok {
		return nil, fmt.Errorf("unknown reference table %q (built-in: %v)", name, BuiltinNames())
	}
	return t, nil
}
