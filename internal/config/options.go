package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a loosely typed option bag decoded from JSON config.
//
// Values arrive as whatever encoding/json produced (string, float64, bool,
// map[string]any, []any). The getters coerce them to the requested type and
// fall back to the supplied default when the key is absent or unusable.
type Options map[string]any

// Any returns the raw value stored under key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// String returns the option as a string.
func (o Options) String(key, def string) string {
	switch v := o.Any(key).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return def
}

// Bool returns the option as a bool. Strings such as "true"/"1" are accepted.
func (o Options) Bool(key string, def bool) bool {
	switch v := o.Any(key).(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	case float64:
		return v != 0
	}
	return def
}

// Int returns the option as an int.
func (o Options) Int(key string, def int) int {
	switch v := o.Any(key).(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string option.
//
// The escape sequence `\t` and the word "tab" are accepted for tab-delimited
// input, since a literal tab is awkward to write in JSON by hand.
func (o Options) Rune(key string, def rune) rune {
	switch v := o.Any(key).(type) {
	case string:
		switch v {
		case "":
			return def
		case `\t`, "tab":
			return '\t'
		}
		r, _ := utf8.DecodeRuneInString(v)
		if r == utf8.RuneError {
			return def
		}
		return r
	case rune:
		return v
	}
	return def
}

// StringMap returns a map[string]string option. Non-string values are skipped.
func (o Options) StringMap(key string) map[string]string {
	switch v := o.Any(key).(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, x := range v {
			if s, ok := x.(string); ok {
				out[k] = s
			}
		}
		return out
	}
	return nil
}

// Merge returns a copy of o with every key from defaults that o does not set.
func (o Options) Merge(defaults Options) Options {
	out := make(Options, len(o)+len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Strings returns a []string option. Non-string elements are skipped.
func (o Options) Strings(key string) []string {
	switch v := o.Any(key).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
