// Package schedule normalizes a business's operating hours into a canonical form.
package schedule

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type selects how operating hours are described.
type Type string

const (
	TypeContinuous Type = "continuous"
	TypeSplit      Type = "split"
)

// Default values used whenever the raw configuration is missing or malformed.
var Default = struct {
	OpenTime    Clock
	CloseTime   Clock
	SlotMinutes int
}{
	OpenTime:    9 * 60,
	CloseTime:   20 * 60,
	SlotMinutes: 30,
}

// Shift is a named, independently enabled window with its own active weekdays.
type Shift struct {
	Name    string
	Start   Clock
	End     Clock
	Enabled bool
	Days    WeekdaySet
}

// Config is the canonical schedule of one business.
type Config struct {
	Type        Type
	WorkDays    WeekdaySet
	Open        Clock
	Close       Clock
	Shifts      []Shift
	SlotMinutes int
	Location    *time.Location
}

// Window is one bookable interval [Start, End) on a given weekday.
type Window struct {
	Shift string
	Start Clock
	End   Clock
}

// DefaultConfig returns the documented fallback schedule.
func DefaultConfig() Config {
	return Config{
		Type:        TypeContinuous,
		WorkDays:    AllWeekdays,
		Open:        Default.OpenTime,
		Close:       Default.CloseTime,
		SlotMinutes: Default.SlotMinutes,
		Location:    time.UTC,
	}
}

// Windows returns the windows that apply on the ISO weekday, in shift order.
// Split schedules ignore WorkDays: a weekday is open only through an enabled shift.
func (c Config) Windows(weekday int) []Window {
	switch c.Type {
	case TypeSplit:
		var windows []Window
		for _, s := range c.Shifts {
			if !s.Enabled || !s.Days.Has(weekday) {
				continue
			}
			windows = append(windows, Window{Shift: s.Name, Start: s.Start, End: s.End})
		}
		return windows
	default:
		if !c.WorkDays.Has(weekday) || c.Close <= c.Open {
			return nil
		}
		return []Window{{Start: c.Open, End: c.Close}}
	}
}

// OpenOn reports whether at least one window applies on the weekday.
func (c Config) OpenOn(weekday int) bool {
	return len(c.Windows(weekday)) > 0
}

// OpenDays returns the set of weekdays with at least one window.
func (c Config) OpenDays() WeekdaySet {
	var s WeekdaySet
	for d := 1; d <= 7; d++ {
		if c.OpenOn(d) {
			s |= NewWeekdaySet(d)
		}
	}
	return s
}

// Loc returns the business location, UTC when unset.
func (c Config) Loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Raw is the operating-hours configuration as served by the backend.
type Raw struct {
	ScheduleType string     `json:"schedule_type"`
	WorkDays     DayList    `json:"work_days"`
	OpenTime     string     `json:"open_time"`
	CloseTime    string     `json:"close_time"`
	Shifts       []RawShift `json:"shifts"`
	SlotDuration int        `json:"slot_duration"`
	Timezone     string     `json:"timezone"`

	// Issues lists members dropped while decoding.
	Issues []string `json:"-"`
}

// RawShift is a shift as served by the backend. A missing Enabled means enabled;
// missing ActiveDays inherit the business work days.
type RawShift struct {
	Name       string  `json:"name"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Enabled    *bool   `json:"enabled"`
	ActiveDays DayList `json:"active_days"`
}

// Resolve normalizes raw into a Config. It never fails: every malformed field
// falls back to its default and is reported in the returned issues.
func Resolve(raw Raw) (Config, []string) {
	cfg := DefaultConfig()
	issues := append([]string(nil), raw.Issues...)

	if tz := strings.TrimSpace(raw.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			issues = append(issues, fmt.Sprintf("timezone %q: %v", tz, err))
		} else {
			cfg.Location = loc
		}
	}

	if raw.SlotDuration > 0 {
		cfg.SlotMinutes = raw.SlotDuration
	} else if raw.SlotDuration < 0 {
		issues = append(issues, fmt.Sprintf("slot_duration %d is not positive", raw.SlotDuration))
	}

	if len(raw.WorkDays) > 0 {
		days, bad := raw.WorkDays.Set()
		issues = append(issues, bad...)
		if days.Empty() {
			issues = append(issues, "work_days has no valid weekday")
		} else {
			cfg.WorkDays = days
		}
	}

	if raw.OpenTime != "" {
		if c, err := ParseClock(raw.OpenTime); err != nil {
			issues = append(issues, "open_time: "+err.Error())
		} else {
			cfg.Open = c
		}
	}
	if raw.CloseTime != "" {
		if c, err := ParseClock(raw.CloseTime); err != nil {
			issues = append(issues, "close_time: "+err.Error())
		} else {
			cfg.Close = c
		}
	}
	if cfg.Close <= cfg.Open {
		issues = append(issues, fmt.Sprintf("close_time %s is not after open_time %s", cfg.Close, cfg.Open))
		cfg.Open, cfg.Close = Default.OpenTime, Default.CloseTime
	}

	switch Type(strings.ToLower(strings.TrimSpace(raw.ScheduleType))) {
	case TypeSplit:
		if len(raw.Shifts) == 0 {
			issues = append(issues, "split schedule without shifts, using continuous hours")
			break
		}
		var shifts []Shift
		shifts, issues = resolveShifts(raw.Shifts, cfg.WorkDays, issues)
		if len(shifts) == 0 {
			issues = append(issues, "split schedule has no valid shift, using continuous hours")
			break
		}
		cfg.Type = TypeSplit
		cfg.Shifts = shifts
	case TypeContinuous, "":
	default:
		issues = append(issues, fmt.Sprintf("unknown schedule_type %q", raw.ScheduleType))
	}

	return cfg, issues
}

func resolveShifts(raw []RawShift, workDays WeekdaySet, issues []string) ([]Shift, []string) {
	shifts := make([]Shift, 0, len(raw))
	for i, rs := range raw {
		name := strings.TrimSpace(rs.Name)
		if name == "" {
			name = fmt.Sprintf("shift %d", i+1)
		}

		start, err := ParseClock(rs.StartTime)
		if err != nil {
			issues = append(issues, fmt.Sprintf("shifts[%d].start_time: %v", i, err))
			continue
		}
		end, err := ParseClock(rs.EndTime)
		if err != nil {
			issues = append(issues, fmt.Sprintf("shifts[%d].end_time: %v", i, err))
			continue
		}
		if end <= start {
			issues = append(issues, fmt.Sprintf("shifts[%d]: end_time must be after start_time", i))
			continue
		}

		days := workDays
		if len(rs.ActiveDays) > 0 {
			var bad []string
			days, bad = rs.ActiveDays.Set()
			issues = append(issues, bad...)
		}

		shifts = append(shifts, Shift{
			Name:    name,
			Start:   start,
			End:     end,
			Enabled: rs.Enabled == nil || *rs.Enabled,
			Days:    days,
		})
	}
	return shifts, issues
}

// DayList is a list of weekdays that tolerates numbers (1..7, 0 = Sunday),
// numeric strings and English day names.
type DayList []string

// UnmarshalJSON accepts a JSON array mixing numbers and strings.
func (l *DayList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		// Anything but an array is treated as absent.
		*l = nil
		return nil
	}
	out := make(DayList, 0, len(items))
	for _, it := range items {
		out = append(out, strings.Trim(string(bytes.TrimSpace(it)), `"`))
	}
	*l = out
	return nil
}

var dayNames = map[string]int{
	"mon": 1, "monday": 1,
	"tue": 2, "tuesday": 2,
	"wed": 3, "wednesday": 3,
	"thu": 4, "thursday": 4,
	"fri": 5, "friday": 5,
	"sat": 6, "saturday": 6,
	"sun": 7, "sunday": 7,
}

// Set converts the list into a WeekdaySet and reports unparsable entries.
func (l DayList) Set() (WeekdaySet, []string) {
	var set WeekdaySet
	var bad []string
	for _, raw := range l {
		v := strings.ToLower(strings.TrimSpace(raw))
		if d, ok := dayNames[v]; ok {
			set |= NewWeekdaySet(d)
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 7 {
			bad = append(bad, fmt.Sprintf("invalid weekday %q", raw))
			continue
		}
		if n == 0 {
			n = 7
		}
		set |= NewWeekdaySet(n)
	}
	return set, bad
}
