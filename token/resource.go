package token

import "strings"

// ResourceMatches reports whether a token bound to granted may be used at
// requested. requested matches when it equals granted or lies beneath it at
// a path boundary. The comparison is case-sensitive and an empty granted
// resource matches nothing.
func ResourceMatches(granted, requested string) bool {
	if granted == "" {
		return false
	}
	if granted == requested {
		return true
	}
	if !strings.HasPrefix(requested, granted) {
		return false
	}
	return strings.HasSuffix(granted, "/") || requested[len(granted)] == '/'
}
