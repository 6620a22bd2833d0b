package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Option maps come from YAML through viper, which lowercases keys,
// so every lookup here is case-insensitive.

// OptionValue returns the raw value for key
func OptionValue(opts map[string]any, key string) (any, bool) {
	if v, ok := opts[key]; ok {
		return v, true
	}
	for k, v := range opts {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// OptionBool interprets bools and bool-like strings ("true", "1", "yes")
func OptionBool(opts map[string]any, key string) bool {
	v, ok := OptionValue(opts, key)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		if s == "yes" || s == "on" {
			return true
		}
		b, err := strconv.ParseBool(s)
		return err == nil && b
	case int:
		return t != 0
	default:
		return false
	}
}

// OptionString returns a string option or ""
func OptionString(opts map[string]any, key string) string {
	v, ok := OptionValue(opts, key)
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// OptionStrings accepts a YAML list or a comma separated string
func OptionStrings(opts map[string]any, key string) []string {
	v, ok := OptionValue(opts, key)
	if !ok || v == nil {
		return nil
	}

	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = strings.Split(fmt.Sprint(t), ",")
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
