package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronExpression represents a parsed cron expression.
// Supports standard 5-field format: minute hour day-of-month month day-of-week
// Examples:
//   - "0 18 * * 5"   - every Friday at 18:00
//   - "*/15 * * * *" - every 15 minutes
//   - "0 9 1 * *"    - first day of every month at 09:00
//
// When both day-of-month and day-of-week are restricted, a day matches if
// either field matches, as in Vixie cron.
type CronExpression struct {
	raw      string
	minutes  fieldSet
	hours    fieldSet
	days     fieldSet
	months   fieldSet
	weekdays fieldSet

	daysRestricted     bool
	weekdaysRestricted bool
}

// fieldSet is a bitmask of allowed values; 64 bits cover every field range.
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }

// Common cron expression presets.
const (
	EveryMinute    = "* * * * *"
	Every5Minutes  = "*/5 * * * *"
	Every15Minutes = "*/15 * * * *"
	EveryHour      = "0 * * * *"
	FridayEvening  = "0 18 * * 5"
	EverySunday    = "0 0 * * 0"
)

// ParseCronExpression parses a cron expression string.
// Each field supports *, */n, n, n-m, n-m/s and comma separated lists of those.
// Day-of-week accepts 7 as an alias for Sunday.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	ce := &CronExpression{raw: strings.Join(fields, " ")}
	var err error

	if ce.minutes, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if ce.hours, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if ce.days, err = parseField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("invalid day field: %w", err)
	}
	if ce.months, err = parseField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}
	if ce.weekdays, err = parseField(fields[4], 0, 7); err != nil {
		return nil, fmt.Errorf("invalid weekday field: %w", err)
	}
	if ce.weekdays.has(7) {
		ce.weekdays |= 1
	}

	ce.daysRestricted = fields[2] != "*"
	ce.weekdaysRestricted = fields[4] != "*"

	return ce, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

func parseField(field string, min, max int) (fieldSet, error) {
	var set fieldSet
	for _, part := range strings.Split(field, ",") {
		s, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}
		set |= s
	}
	return set, nil
}

func parsePart(part string, min, max int) (fieldSet, error) {
	if part == "" {
		return 0, fmt.Errorf("empty value")
	}

	rangePart, step := part, 1
	if i := strings.IndexByte(part, '/'); i >= 0 {
		n, err := strconv.Atoi(part[i+1:])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid step value: %s", part[i+1:])
		}
		rangePart, step = part[:i], n
	}

	var start, end int
	switch {
	case rangePart == "*":
		start, end = min, max
	case strings.Contains(rangePart, "-"):
		bounds := strings.SplitN(rangePart, "-", 2)
		var err error
		if start, err = parseValue(bounds[0], min, max); err != nil {
			return 0, err
		}
		if end, err = parseValue(bounds[1], min, max); err != nil {
			return 0, err
		}
		if start > end {
			return 0, fmt.Errorf("invalid range: %s", rangePart)
		}
	default:
		v, err := parseValue(rangePart, min, max)
		if err != nil {
			return 0, err
		}
		start, end = v, v
		if step > 1 {
			end = max
		}
	}

	var set fieldSet
	for v := start; v <= end; v += step {
		set |= 1 << uint(v)
	}
	return set, nil
}

func parseValue(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value: %s", s)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("value out of range [%d-%d]: %d", min, max, v)
	}
	return v, nil
}

// String returns the normalized cron expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after the given time, in
// the location of after. It returns the zero time if nothing matches within
// five years (e.g. "0 0 30 2 *").
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(5, 0, 0)

	for t.Before(limit) {
		if !ce.months.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !ce.hours.has(t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !ce.minutes.has(t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}

	return time.Time{}
}

func (ce *CronExpression) dayMatches(t time.Time) bool {
	dom := ce.days.has(t.Day())
	dow := ce.weekdays.has(int(t.Weekday()))
	if ce.daysRestricted && ce.weekdaysRestricted {
		return dom || dow
	}
	return dom && dow
}
