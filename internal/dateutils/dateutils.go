// Package dateutils provides the date parsing and calendar arithmetic used by
// the expense store, the recurring expander and the CLI.
package dateutils

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Date layouts accepted by ParseDate, tried in order.
const (
	DateLayoutISO      = "2006-01-02"
	DateLayoutEuropean = "02.01.2006"
	DateLayoutUS       = "01/02/2006"
	DateLayoutFull     = "2006-01-02 15:04:05"
	MonthLayout        = "2006-01"
)

// CommonFormats is the list of layouts ParseDate tries after RFC 3339.
var CommonFormats = []string{
	DateLayoutISO,
	DateLayoutFull,
	DateLayoutEuropean,
	DateLayoutUS,
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
}

var spaces = regexp.MustCompile(`\s+`)

// ParseDate parses s as RFC 3339 or one of CommonFormats. Dates without a zone
// are interpreted in UTC.
func ParseDate(s string) (time.Time, error) {
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range CommonFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// ToISODate formats t as YYYY-MM-DD.
func ToISODate(t time.Time) string {
	return t.Format(DateLayoutISO)
}

// MonthKey formats t as YYYY-MM.
func MonthKey(t time.Time) string {
	return t.Format(MonthLayout)
}

// StartOfMonth returns midnight on the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// EndOfMonth returns the last instant of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, 0).Add(-time.Nanosecond)
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// AddMonths moves t by n calendar months, clamping the day to the end of the
// target month so that Jan 31 + 1 month is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, n, 0)
	if last := daysIn(first.Year(), first.Month(), t.Location()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// Advance moves t forward by one recurrence interval: "weekly", "yearly" or
// anything else for monthly.
func Advance(t time.Time, interval string) time.Time {
	switch strings.ToLower(interval) {
	case "weekly":
		return t.AddDate(0, 0, 7)
	case "yearly":
		return AddMonths(t, 12)
	default:
		return AddMonths(t, 1)
	}
}
