package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day expressed in minutes since midnight.
type Clock int

// EndOfDay is the largest valid clock value ("24:00").
const EndOfDay Clock = 24 * 60

// ParseClock parses "HH:MM" or "HH:MM:SS". Seconds are ignored.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return Clock(hour*60 + minute), nil
}

// ClockOf returns the time of day of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// String formats the clock as "15:04".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Seconds returns the clock as seconds since midnight.
func (c Clock) Seconds() int {
	return int(c) * 60
}

// On returns the instant of the clock on the calendar day of date.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).
		Add(time.Duration(c) * time.Minute)
}

// IsoWeekday converts Go's weekday (0=Sun) to 1=Mon..7=Sun.
func IsoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

// WeekdaySet is a set of ISO weekdays (1=Mon..7=Sun).
type WeekdaySet uint8

// AllWeekdays contains Monday through Sunday.
const AllWeekdays WeekdaySet = 0b1111111

// NewWeekdaySet builds a set, silently skipping values outside 1..7.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= 1 && d <= 7 {
			s |= 1 << (d - 1)
		}
	}
	return s
}

// Has reports whether the ISO weekday is in the set.
func (s WeekdaySet) Has(day int) bool {
	if day < 1 || day > 7 {
		return false
	}
	return s&(1<<(day-1)) != 0
}

// Union returns s ∪ o.
func (s WeekdaySet) Union(o WeekdaySet) WeekdaySet {
	return s | o
}

// Days lists the ISO weekdays in ascending order.
func (s WeekdaySet) Days() []int {
	days := make([]int, 0, 7)
	for d := 1; d <= 7; d++ {
		if s.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

// Empty reports whether no weekday is set.
func (s WeekdaySet) Empty() bool {
	return s == 0
}

// MarshalJSON encodes the clock as "15:04".
func (c Clock) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON decodes "15:04" or "15:04:05".
func (c *Clock) UnmarshalJSON(data []byte) error {
	v, err := ParseClock(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
