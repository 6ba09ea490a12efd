// internal/logfetch/parse.go - Log line parsing and timestamp extraction
package logfetch

import (
	"regexp"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Entry is one parsed log line. Structured lines keep their own keys; plain
// lines carry "message" and, when one could be found, "timestamp".
type Entry map[string]interface{}

var timestampKeys = []string{"ts", "time", "timestamp", "date"}

var (
	isoPattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`)
	nginxPattern = regexp.MustCompile(`\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2} [+-]\d{4}`)
)

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
	"02/Jan/2006:15:04:05 -0700",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var minPlausible = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ParseLines splits a log body into entries, skipping blank lines.
func ParseLines(text string) []Entry {
	var entries []Entry
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") {
			var parsed map[string]interface{}
			if err := sonic.UnmarshalString(line, &parsed); err == nil {
				entries = append(entries, Entry(parsed))
				continue
			}
		}
		entry := Entry{"message": line}
		if ts := findTimestamp(line); ts != "" {
			entry["timestamp"] = ts
		}
		entries = append(entries, entry)
	}
	return entries
}

func findTimestamp(line string) string {
	if m := isoPattern.FindString(line); m != "" {
		return m
	}
	return nginxPattern.FindString(line)
}

// ParseTimestamp parses an ISO-8601 style or nginx style timestamp. Values
// without an offset are taken to be wall-clock time in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timestamp returns the first usable timestamp of the entry. Values before
// 2000 are skipped in favour of the next key.
func (e Entry) Timestamp(loc *time.Location) (time.Time, bool) {
	return e.timestampWithin(loc, time.Time{})
}

// timestampWithin tries each timestamp key in order and returns the first
// value not before minPlausible and, when limit is set, not after limit.
func (e Entry) timestampWithin(loc *time.Location, limit time.Time) (time.Time, bool) {
	for _, key := range timestampKeys {
		var t time.Time
		switch v := e[key].(type) {
		case string:
			parsed, ok := ParseTimestamp(v, loc)
			if !ok {
				continue
			}
			t = parsed
		case float64:
			t = epoch(v, loc)
		case int64:
			t = epoch(float64(v), loc)
		default:
			continue
		}
		if t.Before(minPlausible) || (!limit.IsZero() && t.After(limit)) {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

func epoch(v float64, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if v > 1e12 {
		return time.UnixMilli(int64(v)).In(loc)
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).In(loc)
}

// EarliestTimestamp returns the earliest plausible timestamp among entries.
// Timestamps before 2000 or more than a day after capturedAt are ignored.
func EarliestTimestamp(entries []Entry, loc *time.Location, capturedAt time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	limit := capturedAt.Add(24 * time.Hour)
	for _, e := range entries {
		ts, ok := e.timestampWithin(loc, limit)
		if !ok {
			continue
		}
		if !found || ts.Before(earliest) {
			earliest = ts
			found = true
		}
	}
	return earliest, found
}
