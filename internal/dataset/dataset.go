// Package dataset holds built-in pipeline presets for the known open-data
// exports. A preset fills whatever the user's config leaves empty; explicit
// config values always win.
package dataset

import (
	"fmt"
	"sort"

	"geoingest/internal/config"
	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

// Preset is a partial pipeline for one dataset.
type Preset struct {
	Name          string
	Description   string
	Pattern       string
	ParserOptions config.Options
	Fields        []transformer.FieldRule
	Lookup        *transformer.LookupRule
	Index         storage.IndexSpec
}

var presets = map[string]Preset{}

func register(p Preset) {
	if _, dup := presets[p.Name]; dup {
		panic(fmt.Sprintf("dataset: duplicate preset %q", p.Name))
	}
	presets[p.Name] = p
}

// Get returns a preset by name.
func Get(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// Names lists preset names in sorted order.
func Names() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Apply merges the preset named by p.Dataset into p. A pipeline without a
// dataset is left untouched.
//
// Merge rules:
//   - scalar fields (job, pattern, parser kind, index name) are filled only
//     when empty;
//   - parser options are merged key by key;
//   - field rules and index mappings are merged by target/name, config first;
//   - the lookup is taken from the preset only when config has none.
func Apply(p *config.Pipeline) error {
	if p.Dataset == "" {
		return nil
	}
	ds, ok := presets[p.Dataset]
	if !ok {
		return fmt.Errorf("unknown dataset %q (known: %v)", p.Dataset, Names())
	}

	if p.Job == "" {
		p.Job = ds.Name
	}
	if p.Source.Kind == "" {
		p.Source.Kind = "dir"
	}
	if p.Source.Pattern == "" {
		p.Source.Pattern = ds.Pattern
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = "csv"
	}
	p.Parser.Options = p.Parser.Options.Merge(ds.ParserOptions)

	p.Transform.Fields = mergeRules(p.Transform.Fields, ds.Fields)
	if p.Transform.Lookup == nil && ds.Lookup != nil {
		l := *ds.Lookup
		p.Transform.Lookup = &l
	}

	if p.Index.Name == "" {
		p.Index.Name = ds.Index.Name
	}
	if p.Index.Shards == 0 {
		p.Index.Shards = ds.Index.Shards
	}
	if p.Index.Replicas == 0 {
		p.Index.Replicas = ds.Index.Replicas
	}
	p.Index.Fields = mergeMappings(p.Index.Fields, ds.Index.Fields)
	return nil
}

func mergeRules(cfg, preset []transformer.FieldRule) []transformer.FieldRule {
	out := make([]transformer.FieldRule, 0, len(cfg)+len(preset))
	seen := make(map[string]struct{}, len(cfg))
	for _, r := range cfg {
		seen[r.Target] = struct{}{}
		out = append(out, r)
	}
	for _, r := range preset {
		if _, ok := seen[r.Target]; !ok {
			out = append(out, r)
		}
	}
	return out
}

func mergeMappings(cfg, preset []storage.FieldMapping) []storage.FieldMapping {
	out := make([]storage.FieldMapping, 0, len(cfg)+len(preset))
	seen := make(map[string]struct{}, len(cfg))
	for _, f := range cfg {
		seen[f.Name] = struct{}{}
		out = append(out, f)
	}
	for _, f := range preset {
		if _, ok := seen[f.Name]; !ok {
			out = append(out, f)
		}
	}
	return out
}
