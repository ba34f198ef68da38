package transformer

import (
	"fmt"
	"strings"
)

// ReferenceEntity is the enrichment data attached to a natural key.
type ReferenceEntity struct {
	Name     string   `json:"name"`
	Location GeoPoint `json:"location"`
}

// ReferenceTable resolves natural keys. Implementations must be safe for
// concurrent reads.
type ReferenceTable interface {
	Lookup(key string) (ReferenceEntity, bool)
}

type compiledField struct {
	rule   FieldRule
	coerce coerceFn // nil for pass-through kinds
}

// Transformer maps RawRows onto Documents. It is immutable after New and safe
// for concurrent use.
type Transformer struct {
	fields []compiledField
	lookup *LookupRule
	table  ReferenceTable
}

// New compiles field rules and an optional lookup. table is required when
// lookup is non-nil.
func New(fields []FieldRule, lookup *LookupRule, table ReferenceTable) (*Transformer, error) {
	t := &Transformer{fields: make([]compiledField, 0, len(fields))}

	seen := make(map[string]struct{}, len(fields)+2)
	claim := func(target string) error {
		if _, dup := seen[target]; dup {
			return fmt.Errorf("transformer: duplicate target %q", target)
		}
		seen[target] = struct{}{}
		return nil
	}

	if lookup != nil {
		if err := lookup.Validate(); err != nil {
			return nil, fmt.Errorf("transformer: %w", err)
		}
		if table == nil {
			return nil, fmt.Errorf("transformer: lookup on %q has no reference table", lookup.Key)
		}
		for _, target := range []string{lookup.NameTarget, lookup.LocationTarget} {
			if target == "" {
				continue
			}
			if err := claim(target); err != nil {
				return nil, err
			}
		}
		l := *lookup
		t.lookup = &l
		t.table = table
	}

	for _, r := range fields {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("transformer: %w", err)
		}
		if err := claim(r.Target); err != nil {
			return nil, err
		}
		t.fields = append(t.fields, compiledField{rule: r, coerce: coercerFor(r)})
	}
	if len(t.fields) == 0 && t.lookup == nil {
		return nil, fmt.Errorf("transformer: no field rules")
	}
	return t, nil
}

// Transform maps one row.
//
// Outcomes:
//   - (doc, true, nil): a document was produced.
//   - (nil, false, nil): the row was skipped because its lookup key is unknown.
//   - (nil, false, *RowError): a field failed coercion; drop the row.
//   - (nil, false, ErrLookupMiss): unknown lookup key in strict mode.
func (t *Transformer) Transform(row RawRow) (Document, bool, error) {
	doc := make(Document, len(t.fields)+2)

	if t.lookup != nil {
		key := strings.TrimSpace(row[t.lookup.Key])
		ent, ok := t.table.Lookup(key)
		if !ok {
			if t.lookup.Strict() {
				return nil, false, fmt.Errorf("%w: %s=%q", ErrLookupMiss, t.lookup.Key, key)
			}
			return nil, false, nil
		}
		if t.lookup.NameTarget != "" {
			doc[t.lookup.NameTarget] = fmt.Sprintf("%s (%s)", ent.Name, key)
		}
		if t.lookup.LocationTarget != "" {
			doc[t.lookup.LocationTarget] = ent.Location
		}
	}

	for _, f := range t.fields {
		raw, present := row[f.rule.Source]
		if f.coerce == nil {
			if !present {
				if f.rule.Required {
					return nil, false, &RowError{Field: f.rule.Target, Err: fmt.Errorf("column %q missing", f.rule.Source)}
				}
				continue
			}
			if f.rule.Required && raw == "" {
				return nil, false, &RowError{Field: f.rule.Target, Err: fmt.Errorf("required value is empty")}
			}
			doc[f.rule.Target] = raw
			continue
		}

		if strings.TrimSpace(raw) == "" {
			if f.rule.Required {
				return nil, false, &RowError{Field: f.rule.Target, Value: raw, Err: fmt.Errorf("required value is empty")}
			}
			continue
		}
		v, err := f.coerce(raw)
		if err != nil {
			return nil, false, &RowError{Field: f.rule.Target, Value: raw, Err: err}
		}
		doc[f.rule.Target] = v
	}

	return doc, true, nil
}

// Targets lists every document field the transformer can emit, in rule order.
func (t *Transformer) Targets() []string {
	out := make([]string, 0, len(t.fields)+2)
	if t.lookup != nil {
		if t.lookup.NameTarget != "" {
			out = append(out, t.lookup.NameTarget)
		}
		if t.lookup.LocationTarget != "" {
			out = append(out, t.lookup.LocationTarget)
		}
	}
	for _, f := range t.fields {
		out = append(out, f.rule.Target)
	}
	return out
}
