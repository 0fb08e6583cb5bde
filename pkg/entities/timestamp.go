package entities

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the canonical wall-clock layout stored for snapshots.
// Values in this layout sort lexically in chronological order.
const TimestampLayout = "2006-01-02 15:04:05"

// timestampLayoutFrac keeps sub-second precision when present
const timestampLayoutFrac = "2006-01-02 15:04:05.999999999"

var timestampFormats = []string{
	TimestampLayout,             // canonical, also accepts a fractional second
	"2006-01-02T15:04:05",       // ISO 8601 without zone
	"2006-01-02T15:04:05Z07:00", // ISO 8601 with timezone
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseTimestamp parses a recorded timestamp. Values without a zone are read
// as wall-clock UTC so that comparisons stay consistent across stores.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	var parsed time.Time
	var parseErr error
	for _, format := range timestampFormats {
		parsed, parseErr = time.Parse(format, value)
		if parseErr == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("error parsing timestamp '%s': %w", raw, parseErr)
}

// FormatTimestamp renders t in UTC in the canonical layout, keeping
// fractional seconds only when they are non-zero.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayoutFrac)
}

// CanonicalTimestamp reformats a raw timestamp in the canonical layout. It
// returns the trimmed input unchanged when it cannot be parsed.
func CanonicalTimestamp(raw string) string {
	t, err := ParseTimestamp(raw)
	if err != nil {
		return strings.TrimSpace(raw)
	}
	return FormatTimestamp(t)
}
