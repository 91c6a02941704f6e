package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup reports whether k is set to a non-empty value.
func Lookup(k string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(k))
	return v, v != ""
}

func Get(k, def string) string {
	if v, ok := Lookup(k); ok {
		return v
	}
	return def
}

func GetInt(k string, def int) int {
	v, ok := Lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func GetFloat(k string, def float64) float64 {
	v, ok := Lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// GetDuration accepts Go durations ("1500ms") or bare seconds ("15").
func GetDuration(k string, def time.Duration) time.Duration {
	v, ok := Lookup(k)
	if !ok {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return def
}

func GetBool(k string, def bool) bool {
	v, ok := Lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// List splits on commas, semicolons and whitespace-like separators.
func List(k string, def []string) []string {
	v, ok := Lookup(k)
	if !ok {
		return def
	}
	fields := strings.FieldsFunc(v, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
