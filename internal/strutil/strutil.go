// SPDX-License-Identifier: MIT
// Package strutil holds small string helpers shared by the CLI and reporter.
package strutil

import (
	"strings"
	"unicode/utf8"
)

// SplitCSV splits a comma-separated flag value, trimming whitespace and
// dropping empty items.
func SplitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Truncate shortens value to at most max runes, ending in "..." when cut.
// A max of zero or less disables truncation.
func Truncate(value string, max int) string {
	if max <= 0 || utf8.RuneCountInString(value) <= max {
		return value
	}
	runes := []rune(value)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
