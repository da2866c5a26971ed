package runtimedb

import (
	"errors"
	"time"
)

// TimestampLayout is the whole-second UTC layout used for every stored timestamp.
const TimestampLayout = "2006-01-02T15:04:05Z"

// nowExpr renders the current time in TimestampLayout inside SQL defaults.
const nowExpr = `strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

// FormatTimestamp renders t in UTC with second precision; sub-second parts are dropped.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimestampLayout)
}

// ParseTimestamp accepts TimestampLayout, RFC3339 with fractions, and the
// "YYYY-MM-DD HH:MM:SS" form produced by CURRENT_TIMESTAMP.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
