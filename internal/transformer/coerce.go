package transformer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	errNotFinite  = errors.New("not a finite number")
	errOutOfRange = errors.New("out of int64 range")
)

// coerceFn converts a raw, non-empty value.
type coerceFn func(raw string) (v any, err error)

func parseFloat(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}

func coerceFloat(raw string) (any, error) { return parseFloat(raw) }

func coerceRounded(raw string) (any, error) {
	f, err := parseFloat(raw)
	if err != nil {
		return nil, err
	}
	return toInt64(math.Round(f))
}

func coerceInt(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := parseFloat(s)
	if err != nil {
		return nil, err
	}
	return toInt64(math.Trunc(f))
}

// toInt64 converts an integral float; 2^63 and beyond have no int64 value.
func toInt64(f float64) (any, error) {
	if f < math.MinInt64 || f >= -math.MinInt64 {
		return nil, errOutOfRange
	}
	return int64(f), nil
}

// geoCoercer splits "a<sep>b" into exactly two numbers and returns them as
// [lon, lat].
func geoCoercer(order, sep string) coerceFn {
	if sep == "" {
		sep = ","
	}
	latFirst := order != OrderLonLat
	return func(raw string) (any, error) {
		parts := strings.Split(raw, sep)
		if len(parts) != 2 {
			return nil, fmt.Errorf("want 2 components separated by %q, got %d", sep, len(parts))
		}
		a, err := parseFloat(parts[0])
		if err != nil {
			return nil, fmt.Errorf("first component: %w", err)
		}
		b, err := parseFloat(parts[1])
		if err != nil {
			return nil, fmt.Errorf("second component: %w", err)
		}
		g := NewGeoPoint(a, b)
		if latFirst {
			g = NewGeoPoint(b, a)
		}
		if !g.Valid() {
			return nil, fmt.Errorf("coordinate out of range [lon=%g lat=%g]", g.Lon(), g.Lat())
		}
		return g, nil
	}
}

func coercerFor(r FieldRule) coerceFn {
	switch r.Kind {
	case KindFloat:
		return coerceFloat
	case KindRounded:
		return coerceRounded
	case KindInt:
		return coerceInt
	case KindGeoPoint:
		return geoCoercer(r.Order, r.Separator)
	default:
		return nil
	}
}
