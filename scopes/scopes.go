// Package scopes evaluates granted scopes against required scopes.
package scopes

import (
	"encoding/json"
	"strings"
)

// HasRequired reports whether every required scope is granted.
// An empty required set is always satisfied.
func HasRequired(granted, required []string) bool {
	set := toSet(granted)
	for _, s := range required {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one required scope is granted.
// An empty required set is always satisfied.
func HasAny(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := toSet(granted)
	for _, s := range required {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// Parse reads a scope list written as a space separated OAuth scope string,
// a comma separated list, or a JSON array. Duplicates are removed, order kept.
func Parse(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}

	if strings.HasPrefix(raw, "[") {
		var parsed []string
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return Dedupe(parsed)
		}
	}

	sep := " "
	if strings.Contains(raw, ",") {
		sep = ","
	}
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return Dedupe(out)
}

// Join renders scopes as an OAuth scope string.
func Join(list []string) string {
	return strings.Join(list, " ")
}

// Dedupe removes empty and repeated entries, keeping first-seen order.
func Dedupe(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Intersect returns the entries of requested that are also in allowed,
// in requested order.
func Intersect(requested, allowed []string) []string {
	set := toSet(allowed)
	out := make([]string, 0, len(requested))
	for _, s := range Dedupe(requested) {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether scope is present in list.
func Contains(list []string, scope string) bool {
	for _, s := range list {
		if s == scope {
			return true
		}
	}
	return false
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		set[s] = struct{}{}
	}
	return set
}
