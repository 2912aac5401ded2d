package bot

import (
	"sync"
	"time"

	"reservo/internal/widget"
)

type bookingStep string

const (
	stepNone    bookingStep = "none"
	stepItem    bookingStep = "item"
	stepDate    bookingStep = "date"
	stepTime    bookingStep = "time"
	stepName    bookingStep = "name"
	stepContact bookingStep = "contact"
	stepConfirm bookingStep = "confirm"
)

// BookingDraft collects the customer's choices until confirmation.
type BookingDraft struct {
	ServiceID         string
	ProfessionalID    string
	ClassID           string
	Zone              string
	WorkshopSessionID string
	ItemLabel         string
	Year              int
	Month             time.Month
	Date              string // YYYY-MM-DD
	Time              string // HH:MM
	Name              string
	Phone             string
	Email             string
	ContactConsent    bool
}

type userState struct {
	Step    bookingStep
	Draft   BookingDraft
	Session *widget.Session
}

type stateStore struct {
	mu sync.Mutex
	m  map[int64]*userState
}

func newStateStore() *stateStore {
	return &stateStore{m: make(map[int64]*userState)}
}

func (s *stateStore) get(userID int64) *userState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[userID]
	if st == nil {
		st = &userState{Step: stepNone}
		s.m[userID] = st
	}
	return st
}

func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
