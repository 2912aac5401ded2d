package slots

import (
	"time"

	"reservo/internal/schedule"
)

// DateLayout is the calendar date format used in keys and payloads.
const DateLayout = "2006-01-02"

// Slot represents a bookable time point.
type Slot struct {
	Date  string         `json:"date"`            // "2026-01-15"
	Time  schedule.Clock `json:"time"`            // minutes since midnight
	Shift string         `json:"shift,omitempty"` // split schedules only
}

// Key identifies the slot in occupancy lookups: "2026-01-15 10:30".
func (s Slot) Key() string {
	return Key(s.Date, s.Time)
}

// Key builds an occupancy lookup key from a date and a clock.
func Key(date string, at schedule.Clock) string {
	return date + " " + at.String()
}

// Group is the list of slots produced by one window.
type Group struct {
	Shift string `json:"shift,omitempty"`
	Slots []Slot `json:"slots"`
}

// Day is the generator output for one date.
// Split schedules produce one group per applicable shift; continuous ones a single unnamed group.
type Day struct {
	Date   string  `json:"date"`
	Split  bool    `json:"split"`
	Groups []Group `json:"groups"`
}

// Slots flattens the groups preserving order.
func (d Day) Slots() []Slot {
	var out []Slot
	for _, g := range d.Groups {
		out = append(out, g.Slots...)
	}
	return out
}

// Len returns the total number of slots.
func (d Day) Len() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Slots)
	}
	return n
}

// Closed reports whether no window applies to the date.
func (d Day) Closed() bool {
	return len(d.Groups) == 0
}

// Generate expands the schedule for one calendar date. When date is the
// current day (in the business location) only slots starting strictly after
// now are kept.
func Generate(cfg schedule.Config, date, now time.Time) Day {
	loc := cfg.Loc()
	date = date.In(loc)
	now = now.In(loc)
	dateStr := date.Format(DateLayout)

	day := Day{Date: dateStr, Split: cfg.Type == schedule.TypeSplit}

	step := cfg.SlotMinutes
	if step <= 0 {
		step = schedule.Default.SlotMinutes
	}

	isToday := dateStr == now.Format(DateLayout)
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()

	for _, w := range cfg.Windows(schedule.IsoWeekday(date.Weekday())) {
		group := Group{Shift: w.Shift, Slots: []Slot{}}
		for cursor := w.Start; cursor < w.End; cursor += schedule.Clock(step) {
			if isToday && cursor.Seconds() <= nowSec {
				continue
			}
			group.Slots = append(group.Slots, Slot{Date: dateStr, Time: cursor, Shift: w.Shift})
		}
		day.Groups = append(day.Groups, group)
	}

	return day
}

// ParseDate parses a "2006-01-02" date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}
