package alertlog

import "time"

// timestampLayouts are tried in order; covers naive, offset-aware, and
// Z-suffixed forms (spec §4.9 cursor semantics).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp tolerantly parses a cursor timestamp, normalizing to
// UTC. ok is false if none of the accepted forms match — callers treat
// that as "no cursor filter", not an error.
func ParseTimestamp(s string) (t time.Time, ok bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
