// Package timeutil provides timezone-aware helpers for drop cycles.
// A cycle is identified by the local calendar date on which it runs.
package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the canonical cycle date format.
const DateLayout = "2006-01-02"

// LoadLocation resolves an IANA zone name, treating "" as UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// CycleDate returns the cycle identifier for a run started at now:
// local midnight in loc, expressed in UTC for storage.
func CycleDate(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).UTC()
}

// FormatDate formats t as YYYY-MM-DD in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
