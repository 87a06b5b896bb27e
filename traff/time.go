package traff

import (
	"fmt"
	"time"
)

// Feeds in the wild are sloppy about the UTC offset: full offsets with and
// without the colon, hour-only offsets and Z all occur. Fractional seconds
// are rounded to the nearest second.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
}

// ParseTime parses an ISO 8601 timestamp as used in traffic feeds.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Round(time.Second).UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not a valid ISO 8601 timestamp: %q", s)
}

// FormatTime renders a timestamp the way feeds expect it, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
