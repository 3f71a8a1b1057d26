// Package timeutil pins every calendar computation to the academy timezone.
// Attendance dates are stored as zero-padded ISO day keys (YYYY-MM-DD), so all
// "today", "yesterday" and month windows must be derived here and never from the
// host clock's local zone.
package timeutil

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata" // embedded zone database; containers often ship without one
)

// DefaultTimezone is the academy timezone used when none is configured.
const DefaultTimezone = "Africa/Cairo"

// Common layouts.
const (
	// FormatDate is the day key layout (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatMonth is the compact month key layout used in alert ids (YYYYMM).
	FormatMonth = "200601"
	// FormatDateTime is a human-readable datetime.
	FormatDateTime = "2006-01-02 15:04"
)

var (
	zoneMu sync.RWMutex
	zone   = mustLoad(DefaultTimezone)
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Cairo standard offset
		return time.FixedZone(name, 2*60*60)
	}
	return loc
}

// SetTimezone pins the academy timezone. It is called once at startup.
func SetTimezone(name string) error {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", name, err)
	}
	zoneMu.Lock()
	zone = loc
	zoneMu.Unlock()
	return nil
}

// Location returns the pinned academy timezone.
func Location() *time.Location {
	zoneMu.RLock()
	defer zoneMu.RUnlock()
	return zone
}

// Now returns the current time in the academy timezone.
func Now() time.Time {
	return time.Now().In(Location())
}

// In converts t to the academy timezone.
func In(t time.Time) time.Time {
	return t.In(Location())
}

// Date creates midnight of the given day in the academy timezone.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location())
}

// StartOfDay returns midnight of t's calendar day in the academy timezone.
func StartOfDay(t time.Time) time.Time {
	l := In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	l := In(t)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, l.Location())
}

// EndOfMonth returns midnight of the last day of t's month.
func EndOfMonth(t time.Time) time.Time {
	return StartOfMonth(t).AddDate(0, 1, -1)
}

// Yesterday returns midnight of the calendar day before t.
// Calendar arithmetic keeps the result correct across DST shifts.
func Yesterday(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, -1)
}

// DateKey formats t as the academy-local day key.
func DateKey(t time.Time) string {
	return In(t).Format(FormatDate)
}

// MonthKey formats t as the academy-local month key (YYYYMM).
func MonthKey(t time.Time) string {
	return In(t).Format(FormatMonth)
}

// ParseDateKey parses a YYYY-MM-DD key into midnight of that day.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(FormatDate, key, Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// WeekdayIndex returns the weekday of t with Sunday as 0 and Saturday as 6.
func WeekdayIndex(t time.Time) int {
	return int(In(t).Weekday())
}

// ══════════════════════════════════════════════════════════════════════════════
// WINDOWS
// ══════════════════════════════════════════════════════════════════════════════

// Window is an inclusive range of day keys.
type Window struct {
	From string
	To   string
}

// Contains reports whether key falls inside the window.
// Day keys are zero-padded so lexicographic and chronological order agree.
func (w Window) Contains(key string) bool {
	return key >= w.From && key <= w.To
}

// String implements fmt.Stringer.
func (w Window) String() string {
	return w.From + ".." + w.To
}

// MonthToDate returns the window from the first of t's month through t's day.
func MonthToDate(t time.Time) Window {
	return Window{From: DateKey(StartOfMonth(t)), To: DateKey(t)}
}

// PreviousMonth returns the full calendar month preceding t.
func PreviousMonth(t time.Time) Window {
	first := StartOfMonth(t).AddDate(0, -1, 0)
	return Window{From: DateKey(first), To: DateKey(EndOfMonth(first))}
}
