package grouping

import (
	"regexp"
	"strings"
)

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// EscapeLiteral doubles every single quote in s, the mandatory escaping
// discipline for any value interpolated into a projection query string
// (spec §4.4). Prefer parameter binding wherever the underlying driver
// supports it; this exists for the identifier/DDL-shaped fragments
// (derived-stream names, filter values) that can't be bound.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Sanitize lower-cases name, collapses every run of non-alphanumeric
// characters into a single "-", and trims leading/trailing "-". Used to
// turn a group name into something safe for downstream service naming
// (spec §4.4, tested by property 6 in §8).
func Sanitize(name string) string {
	lower := strings.ToLower(name)
	collapsed := nonAlnumRun.ReplaceAllString(lower, "-")
	return strings.Trim(collapsed, "-")
}
