package transformer

import (
	"fmt"
	"strings"
)

// Field kinds understood by FieldRule.
const (
	KindString    = "string"
	KindTimestamp = "timestamp"
	KindFloat     = "float"
	KindRounded   = "rounded"
	KindInt       = "int"
	KindGeoPoint  = "geo_point"
)

// Coordinate orders for geo_point source columns.
const (
	OrderLatLon = "lat,lon"
	OrderLonLat = "lon,lat"
)

// Lookup miss policies.
const (
	OnMissingSkip  = "skip"
	OnMissingError = "error"
)

// FieldRule maps one source column onto one document field.
//
// Coercion by kind:
//   - string, timestamp: passed through verbatim. Timestamp format is the
//     destination's concern.
//   - float: parsed as float64; empty or absent values omit the field.
//   - rounded: parsed as float64 then rounded half away from zero to int64.
//   - int: parsed as int64; decimal input is truncated toward zero.
//   - geo_point: a "a<sep>b" pair reordered into [lon, lat] according to Order.
type FieldRule struct {
	Target   string `json:"target"`
	Source   string `json:"source"`
	Kind     string `json:"kind"`
	Required bool   `json:"required,omitempty"`

	// geo_point only. Order is the order of the components in the source
	// column (default "lat,lon"). Separator defaults to ",".
	Order     string `json:"order,omitempty"`
	Separator string `json:"separator,omitempty"`
}

// LookupRule enriches rows from a reference table keyed by a source column.
type LookupRule struct {
	// Table names a built-in reference table; Path loads one from a JSON file.
	Table string `json:"table,omitempty"`
	Path  string `json:"path,omitempty"`

	Key            string `json:"key"`
	NameTarget     string `json:"name_target,omitempty"`
	LocationTarget string `json:"location_target,omitempty"`

	// OnMissing is "skip" (default) or "error".
	OnMissing string `json:"on_missing,omitempty"`
}

// Validate checks a rule in isolation.
func (r FieldRule) Validate() error {
	if strings.TrimSpace(r.Target) == "" {
		return fmt.Errorf("target is empty")
	}
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("field %q: source is empty", r.Target)
	}
	switch r.Kind {
	case KindString, KindTimestamp, KindFloat, KindRounded, KindInt:
	case KindGeoPoint:
		switch r.Order {
		case "", OrderLatLon, OrderLonLat:
		default:
			return fmt.Errorf("field %q: unsupported order %q", r.Target, r.Order)
		}
	default:
		return fmt.Errorf("field %q: unsupported kind %q", r.Target, r.Kind)
	}
	return nil
}

func (l LookupRule) Validate() error {
	if strings.TrimSpace(l.Key) == "" {
		return fmt.Errorf("lookup key is empty")
	}
	if l.Table == "" && l.Path == "" {
		return fmt.Errorf("lookup needs a table or a path")
	}
	if l.NameTarget == "" && l.LocationTarget == "" {
		return fmt.Errorf("lookup sets no fields (name_target and location_target are empty)")
	}
	switch l.OnMissing {
	case "", OnMissingSkip, OnMissingError:
	default:
		return fmt.Errorf("unsupported on_missing %q", l.OnMissing)
	}
	return nil
}

// Strict reports whether a lookup miss must fail the run.
func (l LookupRule) Strict() bool { return l.OnMissing == OnMissingError }
