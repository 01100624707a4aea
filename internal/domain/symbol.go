package domain

import "strings"

// NormalizeSymbol trims surrounding whitespace and upper-cases a ticker so
// that "aapl " and "AAPL" address the same position.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
