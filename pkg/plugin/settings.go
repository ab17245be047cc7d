package plugin

import (
	"fmt"
	"strconv"
	"time"
)

// Settings is a plugin's settings sub-tree as decoded from the config file.
// Plugins only read from it; the getters tolerate the loose typing of YAML.
type Settings map[string]any

// Clone returns a shallow copy so a plugin never shares the store's map.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Has reports whether key is set.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// String returns the value at key as a string.
func (s Settings) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the value at key as an int.
func (s Settings) Int(key string, def int) int {
	switch t := s[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// Float returns the value at key as a float64.
func (s Settings) Float(key string, def float64) float64 {
	switch t := s[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns the value at key as a bool.
func (s Settings) Bool(key string, def bool) bool {
	switch t := s[key].(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
	}
	return def
}

// Strings returns the value at key as a list of strings.
func (s Settings) Strings(key string, def []string) []string {
	switch t := s[key].(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return def
}

// Seconds reads a number of seconds at key. Non-positive values yield def.
func (s Settings) Seconds(key string, def time.Duration) time.Duration {
	n := s.Float(key, 0)
	if n <= 0 {
		return def
	}
	return time.Duration(n * float64(time.Second))
}
