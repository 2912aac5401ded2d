// Package mode adapts the widget to the business's booking mode.
package mode

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"reservo/internal/availability"
	"reservo/internal/schedule"
	"reservo/internal/slots"
)

// Kind names a booking mode.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindTable       Kind = "table"
	KindClass       Kind = "class"
	KindWorkshop    Kind = "workshop"
)

// Mode is one of Appointment, Table, Class or Workshop.
type Mode interface {
	Kind() Kind
	sealed()
}

// Service is a bookable service or class.
type Service struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Capacity        int    `json:"capacity"`
}

// Professional performs appointments.
type Professional struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Zone is a seating area of a table-booking business.
type Zone struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// IsEnabled treats a missing flag as enabled.
func (z Zone) IsEnabled() bool {
	return z.Enabled == nil || *z.Enabled
}

// WorkshopSession is a one-off event with its own date, time and capacity.
type WorkshopSession struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Date     string         `json:"date"`
	Start    schedule.Clock `json:"start_time"`
	End      schedule.Clock `json:"end_time"`
	Capacity int            `json:"capacity"`
	Booked   int            `json:"booked"`
}

// Remaining returns the seats left, never negative.
func (w WorkshopSession) Remaining() int {
	if n := w.Capacity - w.Booked; n > 0 {
		return n
	}
	return 0
}

// StartsAt returns the start instant in loc.
func (w WorkshopSession) StartsAt(loc *time.Location) (time.Time, error) {
	date, err := slots.ParseDate(w.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return w.Start.On(date), nil
}

type Appointment struct {
	Services      []Service
	Professionals []Professional
}

type Table struct {
	Zones []Zone
}

type Class struct {
	Classes []Service
}

type Workshop struct {
	Sessions []WorkshopSession
}

func (Appointment) Kind() Kind { return KindAppointment }
func (Table) Kind() Kind       { return KindTable }
func (Class) Kind() Kind       { return KindClass }
func (Workshop) Kind() Kind    { return KindWorkshop }

func (Appointment) sealed() {}
func (Table) sealed()       {}
func (Class) sealed()       {}
func (Workshop) sealed()    {}

// Raw is the booking-mode part of the business configuration.
type Raw struct {
	BookingMode   string            `json:"booking_mode"`
	Services      []Service         `json:"services"`
	Professionals []Professional    `json:"professionals"`
	Zones         []Zone            `json:"zones"`
	Classes       []Service         `json:"classes"`
	Sessions      []WorkshopSession `json:"workshop_sessions"`

	// Issues lists members dropped while decoding.
	Issues []string `json:"-"`
}

// Resolve builds the mode from raw. An unknown or missing mode falls back to
// appointments and is reported as an issue.
func Resolve(raw Raw) (Mode, []string) {
	issues := append([]string(nil), raw.Issues...)
	switch Kind(strings.ToLower(strings.TrimSpace(raw.BookingMode))) {
	case KindTable:
		return Table{Zones: raw.Zones}, issues
	case KindClass:
		return Class{Classes: raw.Classes}, issues
	case KindWorkshop:
		return Workshop{Sessions: raw.Sessions}, issues
	case KindAppointment:
	case "":
		issues = append(issues, "booking_mode missing, using appointment")
	default:
		issues = append(issues, fmt.Sprintf("unknown booking_mode %q, using appointment", raw.BookingMode))
	}
	return Appointment{Services: raw.Services, Professionals: raw.Professionals}, issues
}

// Field names used in requests and payloads.
const (
	FieldServiceID         = "service_id"
	FieldProfessionalID    = "professional_id"
	FieldClassID           = "class_id"
	FieldZone              = "zone"
	FieldWorkshopSessionID = "workshop_session_id"
	FieldDate              = "date"
	FieldTime              = "time"
)

// RequiredFields lists the selection fields a submission must carry.
func RequiredFields(m Mode) []string {
	switch m.(type) {
	case Table:
		return []string{FieldZone, FieldDate, FieldTime}
	case Class:
		return []string{FieldClassID, FieldDate, FieldTime}
	case Workshop:
		return []string{FieldWorkshopSessionID}
	default:
		return []string{FieldServiceID, FieldProfessionalID, FieldDate, FieldTime}
	}
}

// DefaultPartySize is 2 for tables and 1 otherwise.
func DefaultPartySize(m Mode) int {
	if _, ok := m.(Table); ok {
		return 2
	}
	return 1
}

// UsesSlots reports whether the mode goes through the slot calendar.
// Workshops list their own sessions instead.
func UsesSlots(m Mode) bool {
	_, ok := m.(Workshop)
	return !ok
}

// Selection carries the pieces of the customer's choice that affect capacity.
type Selection struct {
	ServiceID string
	ClassID   string
	Zone      string
}

// CapacityFor returns the per-slot capacity for the selection.
// Service and class capacities below one count as one. Table zones that are
// disabled or have no capacity are dropped.
func CapacityFor(m Mode, sel Selection) (availability.Capacity, error) {
	switch v := m.(type) {
	case Appointment:
		if sel.ServiceID == "" {
			return availability.Capacity{Total: 1}, nil
		}
		s, ok := findService(v.Services, sel.ServiceID)
		if !ok {
			return availability.Capacity{}, fmt.Errorf("%w: service %q", ErrUnknownSelection, sel.ServiceID)
		}
		return availability.Capacity{Total: atLeastOne(s.Capacity)}, nil
	case Class:
		if sel.ClassID == "" {
			return availability.Capacity{Total: 1}, nil
		}
		s, ok := findService(v.Classes, sel.ClassID)
		if !ok {
			return availability.Capacity{}, fmt.Errorf("%w: class %q", ErrUnknownSelection, sel.ClassID)
		}
		return availability.Capacity{Total: atLeastOne(s.Capacity)}, nil
	case Table:
		zones := ActiveZones(v.Zones)
		out := make([]availability.ZoneCapacity, 0, len(zones))
		for _, z := range zones {
			out = append(out, availability.ZoneCapacity{Name: z.Name, Capacity: z.Capacity})
		}
		return availability.Capacity{Zones: out}, nil
	case Workshop:
		return availability.Capacity{}, fmt.Errorf("%w: workshops do not use slots", ErrUnknownSelection)
	}
	return availability.Capacity{Total: 1}, nil
}

// ActiveZones returns enabled zones with positive capacity.
func ActiveZones(zones []Zone) []Zone {
	out := make([]Zone, 0, len(zones))
	for _, z := range zones {
		if !z.IsEnabled() || z.Capacity <= 0 || strings.TrimSpace(z.Name) == "" {
			continue
		}
		out = append(out, z)
	}
	return out
}

// AvailableSessions returns sessions that start after now and have seats left,
// ordered by start.
func AvailableSessions(sessions []WorkshopSession, now time.Time) []WorkshopSession {
	type item struct {
		s     WorkshopSession
		start time.Time
	}
	items := make([]item, 0, len(sessions))
	for _, s := range sessions {
		start, err := s.StartsAt(now.Location())
		if err != nil || !start.After(now) || s.Remaining() == 0 {
			continue
		}
		items = append(items, item{s: s, start: start})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].start.Before(items[j].start) })

	out := make([]WorkshopSession, len(items))
	for i, it := range items {
		out[i] = it.s
	}
	return out
}

func findService(list []Service, id string) (Service, bool) {
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
