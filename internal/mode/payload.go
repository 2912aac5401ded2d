package mode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"reservo/internal/schedule"
	"reservo/internal/slots"
)

var (
	// ErrInvalidRequest wraps every rejection of a booking request.
	ErrInvalidRequest = errors.New("invalid booking request")
	// ErrUnknownSelection is returned when a selected item is not configured.
	ErrUnknownSelection = errors.New("unknown selection")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Customer identifies who is booking.
type Customer struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email,omitempty" validate:"required_without=Phone,omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"required_without=Email,omitempty,min=5,max=32"`
	Notes string `json:"notes,omitempty" validate:"max=1000"`
}

// Request is a booking request as entered in the widget.
type Request struct {
	BusinessID        string   `json:"business_id"`
	ServiceID         string   `json:"service_id,omitempty"`
	ProfessionalID    string   `json:"professional_id,omitempty"`
	ClassID           string   `json:"class_id,omitempty"`
	Zone              string   `json:"zone,omitempty"`
	WorkshopSessionID string   `json:"workshop_session_id,omitempty"`
	Date              string   `json:"date,omitempty"`
	Time              string   `json:"time,omitempty"`
	PartySize         int      `json:"party_size,omitempty"`
	Customer          Customer `json:"customer"`
	ContactConsent    bool     `json:"contact_consent,omitempty"`
}

func (r Request) field(name string) string {
	switch name {
	case FieldServiceID:
		return r.ServiceID
	case FieldProfessionalID:
		return r.ProfessionalID
	case FieldClassID:
		return r.ClassID
	case FieldZone:
		return r.Zone
	case FieldWorkshopSessionID:
		return r.WorkshopSessionID
	case FieldDate:
		return r.Date
	case FieldTime:
		return r.Time
	}
	return ""
}

// Payload is the submission forwarded to the booking backend.
type Payload struct {
	Reference         string   `json:"reference" validate:"required,uuid4"`
	BusinessID        string   `json:"business_id" validate:"required"`
	Mode              Kind     `json:"booking_mode" validate:"required,oneof=appointment table class workshop"`
	ServiceID         string   `json:"service_id,omitempty"`
	ProfessionalID    string   `json:"professional_id,omitempty"`
	ClassID           string   `json:"class_id,omitempty"`
	Zone              string   `json:"zone,omitempty"`
	WorkshopSessionID string   `json:"workshop_session_id,omitempty"`
	Date              string   `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time              string   `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	PartySize         int      `json:"party_size" validate:"min=1,max=100"`
	Customer          Customer `json:"customer"`
	ContactConsent    bool     `json:"contact_consent,omitempty"`
	CreatedAt         string   `json:"created_at"`
}

// BuildPayload shapes req into the submission for mode m. Only the fields the
// mode uses are carried over; a missing party size takes the mode default.
func BuildPayload(m Mode, req Request, now time.Time) (Payload, error) {
	req = trimRequest(req)

	var missing []string
	for _, f := range RequiredFields(m) {
		if req.field(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Payload{}, fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}

	p := Payload{
		Reference:      uuid.NewString(),
		BusinessID:     req.BusinessID,
		Mode:           m.Kind(),
		PartySize:      req.PartySize,
		Customer:       req.Customer,
		ContactConsent: req.ContactConsent,
		CreatedAt:      now.UTC().Format(time.RFC3339),
	}
	if p.PartySize <= 0 {
		p.PartySize = DefaultPartySize(m)
	}

	if UsesSlots(m) {
		at, err := schedule.ParseClock(req.Time)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: time: %v", ErrInvalidRequest, err)
		}
		p.Date = req.Date
		p.Time = at.String()
	} else if req.Date != "" || req.Time != "" {
		return Payload{}, fmt.Errorf("%w: workshop bookings take no date or time", ErrInvalidRequest)
	}

	switch v := m.(type) {
	case Appointment:
		if _, ok := findService(v.Services, req.ServiceID); !ok && len(v.Services) > 0 {
			return Payload{}, fmt.Errorf("%w: service %q", ErrUnknownSelection, req.ServiceID)
		}
		p.ServiceID = req.ServiceID
		p.ProfessionalID = req.ProfessionalID
	case Table:
		zone, ok := findZone(ActiveZones(v.Zones), req.Zone)
		if !ok {
			return Payload{}, fmt.Errorf("%w: zone %q", ErrUnknownSelection, req.Zone)
		}
		p.Zone = zone.Name
	case Class:
		if _, ok := findService(v.Classes, req.ClassID); !ok && len(v.Classes) > 0 {
			return Payload{}, fmt.Errorf("%w: class %q", ErrUnknownSelection, req.ClassID)
		}
		p.ClassID = req.ClassID
	case Workshop:
		p.WorkshopSessionID = req.WorkshopSessionID
	}

	if err := validate.Struct(p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return p, nil
}

// Slot returns the slot a slot-based payload targets.
func (p Payload) Slot() (slots.Slot, bool) {
	if p.Date == "" || p.Time == "" {
		return slots.Slot{}, false
	}
	at, err := schedule.ParseClock(p.Time)
	if err != nil {
		return slots.Slot{}, false
	}
	return slots.Slot{Date: p.Date, Time: at}, true
}

func findZone(zones []Zone, name string) (Zone, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, z := range zones {
		if strings.ToLower(strings.TrimSpace(z.Name)) == key {
			return z, true
		}
	}
	return Zone{}, false
}

func trimRequest(r Request) Request {
	r.BusinessID = strings.TrimSpace(r.BusinessID)
	r.ServiceID = strings.TrimSpace(r.ServiceID)
	r.ProfessionalID = strings.TrimSpace(r.ProfessionalID)
	r.ClassID = strings.TrimSpace(r.ClassID)
	r.Zone = strings.TrimSpace(r.Zone)
	r.WorkshopSessionID = strings.TrimSpace(r.WorkshopSessionID)
	r.Date = strings.TrimSpace(r.Date)
	r.Time = strings.TrimSpace(r.Time)
	r.Customer.Name = strings.TrimSpace(r.Customer.Name)
	r.Customer.Email = strings.TrimSpace(r.Customer.Email)
	r.Customer.Phone = strings.TrimSpace(r.Customer.Phone)
	return r
}
