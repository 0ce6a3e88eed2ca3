// Package timeutil provides calendar helpers used to scope leaderboards in time.
// All functions keep the location of their input; callers pick the timezone.
package timeutil

import (
	"fmt"
	"time"
)

// NaiveLayout is the zone-less timestamp format understood by the skills service.
const NaiveLayout = "2006-01-02T15:04:05"

// Clock supplies the current time. Tests replace it with a fixed clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location (UTC when unset).
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now().UTC()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	return loc, nil
}

// QuarterOf returns the 1-based calendar quarter of t.
func QuarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// StartOfQuarter returns midnight of the first day of t's quarter.
func StartOfQuarter(t time.Time) time.Time {
	firstMonth := time.Month((QuarterOf(t)-1)*3 + 1)
	return time.Date(t.Year(), firstMonth, 1, 0, 0, 0, 0, t.Location())
}

// QuarterRange returns the half-open interval [start, end) covering t's quarter.
// For Q4 end is January 1st of the following year.
func QuarterRange(t time.Time) (start, end time.Time) {
	start = StartOfQuarter(t)
	// time.Date normalizes month 13 into January of the next year.
	end = time.Date(start.Year(), start.Month()+3, 1, 0, 0, 0, 0, start.Location())
	return start, end
}

// QuarterLabel formats t's quarter as "2026Q4".
func QuarterLabel(t time.Time) string {
	return fmt.Sprintf("%dQ%d", t.Year(), QuarterOf(t))
}

// FormatNaive renders t's wall clock without zone information.
func FormatNaive(t time.Time) string {
	return t.Format(NaiveLayout)
}
