package inspector

import (
	"strconv"
	"time"
)

// timeRangeFormat matches the format the remote service reports time ranges in.
const timeRangeFormat = "2006-01-02 15:04:05"

// timestampLayouts are tried in order when parsing cell values as timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// ParseTimestamp attempts to parse a string cell as a timestamp.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a timestamp the way time ranges are reported.
func FormatTimestamp(ts time.Time) string {
	return ts.Format(timeRangeFormat)
}

// DecodeCell converts a raw CSV cell into a typed value: int64, float64,
// bool, or the original string. Empty cells decode to nil.
func DecodeCell(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
