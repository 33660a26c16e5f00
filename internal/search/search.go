// Package search derives the filtered host list shown while a query is active.
//
// The rule: a host matches when its display name contains the query,
// compared case-insensitively. Whitespace is part of the query. Only the
// empty query matches every host. Results keep the pre-order of the input.
package search

import (
	"strings"

	"github.com/zjrosen/connreg/internal/connection"
)

// Normalize lower-cases q.
func Normalize(q string) string {
	return strings.ToLower(q)
}

// Matches reports whether h's name contains the (already normalized) query.
func Matches(h connection.Host, normalized string) bool {
	if normalized == "" {
		return true
	}
	return strings.Contains(strings.ToLower(h.Name), normalized)
}

// MatchParams is a wider rule that also looks at parameter values, so a query
// like "10.0.0" finds hosts by address.
func MatchParams(h connection.Host, normalized string) bool {
	if Matches(h, normalized) {
		return true
	}
	for _, v := range h.Params {
		if strings.Contains(strings.ToLower(v), normalized) {
			return true
		}
	}
	return false
}

// Filter returns the ordered subsequence of hosts whose names match q.
func Filter(hosts []connection.Host, q string) []connection.Host {
	return FilterFunc(hosts, q, Matches)
}

// FilterFunc is Filter with a caller-chosen match rule.
func FilterFunc(hosts []connection.Host, q string, match func(connection.Host, string) bool) []connection.Host {
	norm := Normalize(q)
	out := make([]connection.Host, 0, len(hosts))
	for _, h := range hosts {
		if match(h, norm) {
			out = append(out, h)
		}
	}
	return out
}
