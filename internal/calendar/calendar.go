// Package calendar provides pure date and time functions for the NSE weekly
// options schedule: expiry resolution, trading-day and trading-hour predicates.
package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates (holidays, expiries).
const DateLayout = "2006-01-02"

// HolidaySet is a set of exchange holidays keyed by their "YYYY-MM-DD" form.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a HolidaySet from a list of "YYYY-MM-DD" strings.
func NewHolidaySet(dates []string) HolidaySet {
	set := make(HolidaySet, len(dates))
	for _, d := range dates {
		set[d] = struct{}{}
	}
	return set
}

// Contains reports whether the given date is a listed holiday.
func (h HolidaySet) Contains(date time.Time) bool {
	_, ok := h[date.Format(DateLayout)]
	return ok
}

// ExpiryNWeeksAhead returns the weekly expiry (Thursday) for the week that is
// the given number of weeks ahead of today. The result is the Thursday of the
// target week using a Monday=0 week convention, so it never falls earlier than
// today + weeks*7 days.
func ExpiryNWeeksAhead(today time.Time, weeks int) time.Time {
	target := today.AddDate(0, 0, weeks*7)
	// Monday=0 ... Sunday=6; Thursday is 3.
	weekday := (int(target.Weekday()) + 6) % 7
	daysToAdd := ((3 - weekday) % 7 + 7) % 7
	return target.AddDate(0, 0, daysToAdd)
}

// IsTradingDay reports whether the given date is a trading day: not a weekend
// and not present in the holiday set.
func IsTradingDay(date time.Time, holidays HolidaySet) bool {
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	return !holidays.Contains(date)
}

// NextTradingDay returns the first trading day strictly after the given date.
// Terminates for any finite holiday set.
func NextTradingDay(date time.Time, holidays HolidaySet) time.Time {
	next := date.AddDate(0, 0, 1)
	for !IsTradingDay(next, holidays) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Clock is a time of day with second precision.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseClock parses a "HH:MM:SS" string into a Clock.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return Clock{}, fmt.Errorf("parsing clock time %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
}

func (c Clock) secondsOfDay() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

// String returns the clock in "HH:MM:SS" form.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// IsTradingTime reports whether now's time of day falls within the inclusive
// interval [start, end].
func IsTradingTime(now time.Time, start, end Clock) bool {
	sec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	return start.secondsOfDay() <= sec && sec <= end.secondsOfDay()
}
