package procurement

import "fmt"

// Reference prefixes for generated document numbers.
const (
	PrefixRequest = "PR"
	PrefixOrder   = "BC"
)

// FormatReference renders a year-scoped sequence as a human reference,
// e.g. PR-2026-007. Sequences past 999 simply widen the numeric part.
func FormatReference(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%03d", prefix, year, seq)
}
