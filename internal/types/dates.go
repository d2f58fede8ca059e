package types

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"01-02-2006",
	"1/2/2006",
	"200601",
	"2006",
}

// ParseDate reads the date formats seen across the parcel, recorder and
// listing sources.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// YearsSince returns the whole years between the date and now, or -1 when
// the date cannot be read.
func YearsSince(s string, now time.Time) int {
	t, ok := ParseDate(s)
	if !ok || t.After(now) {
		return -1
	}
	years := now.Year() - t.Year()
	if now.YearDay() < t.YearDay() {
		years--
	}
	return years
}
