package mode

import (
	"reservo/internal/lenient"
	"reservo/internal/schedule"
)

// UnmarshalJSON decodes the booking-mode part of a config document member by
// member. Malformed members are dropped and recorded in Issues; the booking
// mode itself survives any of them.
func (r *Raw) UnmarshalJSON(data []byte) error {
	f, ok := lenient.Parse(data, "")
	if !ok {
		*r = Raw{Issues: []string{"booking config is not a JSON object, ignored"}}
		return nil
	}

	out := Raw{BookingMode: f.String("booking_mode")}
	f.Objects("services", func(item *lenient.Fields) {
		out.Services = append(out.Services, service(item))
	})
	f.Objects("classes", func(item *lenient.Fields) {
		out.Classes = append(out.Classes, service(item))
	})
	f.Objects("professionals", func(item *lenient.Fields) {
		out.Professionals = append(out.Professionals, Professional{
			ID:   item.String("id"),
			Name: item.String("name"),
		})
	})
	f.Objects("zones", func(item *lenient.Fields) {
		out.Zones = append(out.Zones, Zone{
			Name:     item.String("name"),
			Capacity: item.Int("capacity"),
			Enabled:  item.Bool("enabled"),
		})
	})
	f.Objects("workshop_sessions", func(item *lenient.Fields) {
		if s, ok := session(item); ok {
			out.Sessions = append(out.Sessions, s)
		}
	})
	out.Issues = f.Issues

	*r = out
	return nil
}

func service(f *lenient.Fields) Service {
	return Service{
		ID:              f.String("id"),
		Name:            f.String("name"),
		DurationMinutes: f.Int("duration_minutes"),
		Capacity:        f.Int("capacity"),
	}
}

// session drops a workshop session whose times cannot be read.
func session(f *lenient.Fields) (WorkshopSession, bool) {
	s := WorkshopSession{
		ID:       f.String("id"),
		Title:    f.String("title"),
		Date:     f.String("date"),
		Capacity: f.Int("capacity"),
		Booked:   f.Int("booked"),
	}
	var err error
	if s.Start, err = schedule.ParseClock(f.String("start_time")); err != nil {
		f.Issue("start_time", "is not a time, session dropped")
		return WorkshopSession{}, false
	}
	if s.End, err = schedule.ParseClock(f.String("end_time")); err != nil {
		f.Issue("end_time", "is not a time, session dropped")
		return WorkshopSession{}, false
	}
	return s, true
}
