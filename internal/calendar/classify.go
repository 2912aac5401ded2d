// Package calendar classifies the days of a month for the date picker.
package calendar

import (
	"time"

	"reservo/internal/availability"
	"reservo/internal/schedule"
	"reservo/internal/slots"
)

// Status of a calendar day.
type Status string

const (
	StatusPast   Status = "past"
	StatusClosed Status = "closed"
	StatusFull   Status = "full"
	StatusOpen   Status = "open"
)

// Selectable reports whether a date with this status can be picked.
func (s Status) Selectable() bool {
	return s == StatusOpen
}

// Day is one classified date.
type Day struct {
	Date    string `json:"date"`
	Weekday int    `json:"weekday"` // 1=Mon..7=Sun
	Status  Status `json:"status"`
	// Unverified is set when occupancy could not be fetched and the day was
	// reported full without checking.
	Unverified bool `json:"unverified,omitempty"`
}

// Lookup returns the occupancy of a date. ok=false means it is unknown.
type Lookup func(date string) (occ availability.Occupancy, ok bool)

// ClassifyMonth classifies every date of the month in the business location.
// Order of checks: past, closed, full, open. A closed weekday is never
// looked up.
func ClassifyMonth(cfg schedule.Config, year int, month time.Month, now time.Time, lookup Lookup, zone string) []Day {
	loc := cfg.Loc()
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	days := make([]Day, 0, 31)
	for date := first; date.Month() == month; date = date.AddDate(0, 0, 1) {
		days = append(days, classify(cfg, date, today, now, lookup, zone))
	}
	return days
}

// ClassifyDate classifies a single date.
func ClassifyDate(cfg schedule.Config, date, now time.Time, lookup Lookup, zone string) Day {
	loc := cfg.Loc()
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	date = date.In(loc)
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return classify(cfg, date, today, now, lookup, zone)
}

func classify(cfg schedule.Config, date, today, now time.Time, lookup Lookup, zone string) Day {
	weekday := schedule.IsoWeekday(date.Weekday())
	d := Day{Date: date.Format(slots.DateLayout), Weekday: weekday}

	switch {
	case date.Before(today):
		d.Status = StatusPast
		return d
	case !cfg.OpenOn(weekday):
		d.Status = StatusClosed
		return d
	}

	list := slots.Generate(cfg, date, now).Slots()
	if len(list) == 0 {
		d.Status = StatusFull
		return d
	}

	var (
		occ availability.Occupancy
		ok  bool
	)
	if lookup != nil {
		occ, ok = lookup(d.Date)
	}
	if !ok {
		d.Status = StatusFull
		d.Unverified = true
		return d
	}

	if occ.AllFull(list, zone) {
		d.Status = StatusFull
	} else {
		d.Status = StatusOpen
	}
	return d
}

// NeedsOccupancy lists the dates of the month that are neither past nor closed
// and still have slots left, i.e. the dates whose status depends on occupancy.
func NeedsOccupancy(cfg schedule.Config, year int, month time.Month, now time.Time) map[string][]slots.Slot {
	loc := cfg.Loc()
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	out := make(map[string][]slots.Slot)
	for date := time.Date(year, month, 1, 0, 0, 0, 0, loc); date.Month() == month; date = date.AddDate(0, 0, 1) {
		if date.Before(today) || !cfg.OpenOn(schedule.IsoWeekday(date.Weekday())) {
			continue
		}
		if list := slots.Generate(cfg, date, now).Slots(); len(list) > 0 {
			out[date.Format(slots.DateLayout)] = list
		}
	}
	return out
}
