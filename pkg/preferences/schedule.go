package preferences

import (
	"fmt"
	"time"
)

// Matches reports whether f allows a send on weekday.
func (f Frequency) Matches(weekday time.Weekday) bool {
	switch f {
	case Weekdays:
		return weekday >= time.Monday && weekday <= time.Friday
	case Weekends:
		return weekday == time.Saturday || weekday == time.Sunday
	case Daily, "":
		return true
	default:
		return false
	}
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekdays, Weekends:
		return true
	default:
		return false
	}
}

// ParseClock splits an "HH:MM" value.
func ParseClock(value string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextSendAfter returns the first moment strictly after now (in now's location)
// when p would fire, or false if p is disabled or malformed.
func (p Preference) NextSendAfter(now time.Time) (time.Time, bool) {
	if !p.Enabled || !p.Frequency.Valid() {
		return time.Time{}, false
	}
	hour, minute, err := ParseClock(p.Time)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := now.Date()
	next := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	for i := 0; i < 7 && !p.Frequency.Matches(next.Weekday()); i++ {
		next = next.AddDate(0, 0, 1)
	}
	return next, true
}
