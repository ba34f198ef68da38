package config

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"geoingest/internal/reference"
	"geoingest/internal/storage"
	"geoingest/internal/transformer"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is a JSON-ish pointer into the config
// such as "transform.fields[3].kind".
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline checks p after dataset presets have been applied. It never
// stops at the first problem; callers print every issue.
func ValidatePipeline(p Pipeline) []Issue {
	var out []Issue
	errf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		out = append(out, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, a...)})
	}

	// source
	if p.Source.Kind != "dir" {
		errf("source.kind", "unsupported kind %q (want \"dir\")", p.Source.Kind)
	}
	if strings.TrimSpace(p.Source.Dir) == "" {
		errf("source.dir", "is required")
	}

	// parser
	if p.Parser.Kind != "csv" {
		errf("parser.kind", "unsupported kind %q (want \"csv\")", p.Parser.Kind)
	}
	if enc := p.Parser.Options.String("encoding", ""); enc != "" {
		if _, err := htmlindex.Get(enc); err != nil {
			errf("parser.options.encoding", "unknown encoding %q", enc)
		}
	}

	// transform
	if len(p.Transform.Fields) == 0 && p.Transform.Lookup == nil {
		errf("transform.fields", "no field rules")
	}
	for i, r := range p.Transform.Fields {
		if err := r.Validate(); err != nil {
			errf(fmt.Sprintf("transform.fields[%d]", i), "%v", err)
		}
	}
	if l := p.Transform.Lookup; l != nil {
		if err := l.Validate(); err != nil {
			errf("transform.lookup", "%v", err)
		} else if l.Path == "" {
			if _, ok := reference.Builtin(l.Table); !ok {
				errf("transform.lookup.table", "unknown table %q (built-in: %v)", l.Table, reference.BuiltinNames())
			}
		}
	}

	// index
	if strings.TrimSpace(p.Index.Name) == "" {
		errf("index.name", "is required")
	}
	if p.Index.Shards < 0 || p.Index.Replicas < 0 {
		errf("index", "shards and replicas must be >= 0")
	}
	seen := map[string]bool{}
	for i, f := range p.Index.Fields {
		path := fmt.Sprintf("index.fields[%d]", i)
		if f.Name == "" {
			errf(path+".name", "is required")
		}
		if !storage.ValidFieldType(f.Type) {
			errf(path+".type", "unsupported type %q", f.Type)
		}
		if seen[f.Name] {
			errf(path+".name", "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	for _, target := range ruleTargets(p.Transform) {
		m, ok := p.Index.Field(target.name)
		switch {
		case target.geo && !ok:
			errf(target.path, "geo_point target %q must be mapped as geo_point in index.fields", target.name)
		case target.geo && m.Type != storage.TypeGeoPoint:
			errf(target.path, "geo_point target %q is mapped as %q", target.name, m.Type)
		case !ok:
			warnf(target.path, "target %q has no index mapping; the destination will infer its type", target.name)
		}
	}

	// storage
	switch p.Storage.Kind {
	case "":
		errf("storage.kind", "is required")
	case "elasticsearch":
		if len(p.Storage.Addresses) == 0 {
			warnf("storage.addresses", "empty; using http://localhost:9200")
		}
	case "sqlite", "postgres", "mssql":
		if strings.TrimSpace(p.Storage.DSN) == "" {
			errf("storage.dsn", "is required for %s", p.Storage.Kind)
		}
	default:
		errf("storage.kind", "unsupported kind %q", p.Storage.Kind)
	}

	// runtime
	rt := p.Runtime
	if rt.BatchSize < 0 {
		errf("runtime.batch_size", "must be >= 0 (0 means %d)", DefaultBatchSize)
	}
	if rt.FileWorkers < 0 {
		errf("runtime.file_workers", "must be >= 0 (0 means %d)", DefaultFileWorkers)
	}
	if rt.ChannelBuffer < 0 {
		errf("runtime.channel_buffer", "must be >= 0")
	}
	if eff := rt.WithDefaults(); eff.ChannelBuffer > eff.BatchSize {
		errf("runtime.channel_buffer", "%d exceeds batch_size %d", eff.ChannelBuffer, eff.BatchSize)
	}

	return out
}

type target struct {
	name string
	path string
	geo  bool
}

func ruleTargets(t Transform) []target {
	var out []target
	if l := t.Lookup; l != nil {
		if l.NameTarget != "" {
			out = append(out, target{name: l.NameTarget, path: "transform.lookup.name_target"})
		}
		if l.LocationTarget != "" {
			out = append(out, target{name: l.LocationTarget, path: "transform.lookup.location_target", geo: true})
		}
	}
	for i, r := range t.Fields {
		out = append(out, target{
			name: r.Target,
			path: fmt.Sprintf("transform.fields[%d].target", i),
			geo:  r.Kind == transformer.KindGeoPoint,
		})
	}
	return out
}
