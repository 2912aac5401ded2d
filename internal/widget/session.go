package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reservo/internal/availability"
	"reservo/internal/calendar"
	"reservo/internal/metrics"
	"reservo/internal/mode"
	"reservo/internal/schedule"
	"reservo/internal/slots"
)

const (
	viewMonth = "month"
	viewSlots = "slots"
)

// Options tune a session.
type Options struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Concurrency bounds parallel occupancy fetches for a month.
	Concurrency int
	Logger      *zerolog.Logger
}

// SlotState is a slot with its occupancy for the current selection.
type SlotState struct {
	slots.Slot
	Occupancy  availability.SlotOccupancy `json:"occupancy"`
	Tier       availability.Tier          `json:"tier"`
	Selectable bool                       `json:"selectable"`
}

// SlotGroup is the slots of one shift, or of the whole day for continuous hours.
type SlotGroup struct {
	Shift string      `json:"shift,omitempty"`
	Slots []SlotState `json:"slots"`
}

// SlotView is what the slot picker renders for one date.
type SlotView struct {
	Date   string      `json:"date"`
	Split  bool        `json:"split"`
	Zone   string      `json:"zone,omitempty"`
	Groups []SlotGroup `json:"groups"`
}

// Selectable counts the slots that can still be picked.
func (v SlotView) Selectable() int {
	n := 0
	for _, g := range v.Groups {
		for _, s := range g.Slots {
			if s.Selectable {
				n++
			}
		}
	}
	return n
}

// State is a copy of the session's current selection.
type State struct {
	Date      string
	Selection mode.Selection
}

// Session holds configuration fetched once and the current selection.
// Every ShowMonth and SelectDate call takes a generation number; a response
// that completes after a newer call for the same view is discarded with ErrStale.
type Session struct {
	businessID string
	src        Source
	sub        Submitter
	now        func() time.Time
	log        *zerolog.Logger
	workers    int

	cfg       schedule.Config
	mode      mode.Mode
	defaulted bool

	mu    sync.Mutex
	gens  map[string]uint64
	state State
}

// Open starts a session. The configuration is fetched once; if that fails the
// documented default schedule is used and Defaulted reports true.
func Open(ctx context.Context, businessID string, src Source, sub Submitter, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	log := opts.Logger.With().Str("business", businessID).Logger()

	s := &Session{
		businessID: businessID,
		src:        src,
		sub:        sub,
		now:        opts.Now,
		log:        &log,
		workers:    opts.Concurrency,
		gens:       make(map[string]uint64),
	}

	rawSchedule, rawMode, err := src.BusinessConfig(ctx, businessID)
	if err != nil {
		s.log.Warn().Err(err).Msg("business config unavailable, using default schedule")
		s.defaulted = true
		metrics.IncConfigFallback()
		rawSchedule, rawMode = schedule.Raw{}, mode.Raw{}
	}

	var issues []string
	s.cfg, issues = schedule.Resolve(rawSchedule)
	for _, issue := range issues {
		s.log.Warn().Str("issue", issue).Msg("schedule config degraded")
	}
	s.mode, issues = mode.Resolve(rawMode)
	if !s.defaulted {
		for _, issue := range issues {
			s.log.Warn().Str("issue", issue).Msg("booking mode degraded")
		}
	}
	return s
}

func (s *Session) BusinessID() string       { return s.businessID }
func (s *Session) Config() schedule.Config  { return s.cfg }
func (s *Session) Mode() mode.Mode          { return s.mode }
func (s *Session) Defaulted() bool          { return s.defaulted }
func (s *Session) Location() *time.Location { return s.cfg.Loc() }

// State returns a copy of the current selection.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) begin(view string, update func(*State)) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[view]++
	if update != nil {
		update(&s.state)
	}
	return s.gens[view]
}

func (s *Session) current(view string, gen uint64, check func(State) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[view] != gen {
		return false
	}
	return check == nil || check(s.state)
}

// ShowMonth classifies every date of the month for the selection.
func (s *Session) ShowMonth(ctx context.Context, year int, month time.Month, sel mode.Selection) (calendar.Month, error) {
	if !mode.UsesSlots(s.mode) {
		return calendar.Month{}, ErrSlotsUnsupported
	}
	capacity, err := mode.CapacityFor(s.mode, sel)
	if err != nil {
		return calendar.Month{}, err
	}
	gen := s.begin(viewMonth, func(st *State) { st.Selection = sel })

	loader := calendar.NewLoader(s.occupancyFor(capacity), s.workers, s.log)
	m, err := loader.LoadMonth(ctx, s.cfg, year, month, s.now(), sel.Zone)
	if err != nil {
		return calendar.Month{}, fmt.Errorf("load month %d-%02d: %w", year, month, err)
	}

	if !s.current(viewMonth, gen, nil) {
		metrics.IncStale(viewMonth)
		return calendar.Month{}, ErrStale
	}
	for _, d := range m.Days {
		metrics.IncDayStatus(string(d.Status))
	}
	return m, nil
}

// SelectDate makes date the current selection and returns its slots.
// A date whose occupancy cannot be read fails with ErrOccupancyUnavailable
// rather than showing every slot as free.
func (s *Session) SelectDate(ctx context.Context, date string, sel mode.Selection) (SlotView, error) {
	if !mode.UsesSlots(s.mode) {
		return SlotView{}, ErrSlotsUnsupported
	}
	day, err := slots.ParseDate(strings.TrimSpace(date), s.cfg.Loc())
	if err != nil {
		return SlotView{}, fmt.Errorf("%w: %q: %v", ErrInvalidDate, date, err)
	}
	date = day.Format(slots.DateLayout)
	capacity, err := mode.CapacityFor(s.mode, sel)
	if err != nil {
		return SlotView{}, err
	}

	gen := s.begin(viewSlots, func(st *State) {
		st.Date = date
		st.Selection = sel
	})

	view, err := s.slotView(ctx, day, sel.Zone, capacity)

	if !s.current(viewSlots, gen, func(st State) bool { return st.Date == date }) {
		metrics.IncStale(viewSlots)
		return SlotView{}, ErrStale
	}
	if err != nil {
		return SlotView{}, err
	}
	return view, nil
}

func (s *Session) slotView(ctx context.Context, day time.Time, zone string, capacity availability.Capacity) (SlotView, error) {
	generated := slots.Generate(s.cfg, day, s.now())
	view := SlotView{Date: generated.Date, Split: generated.Split, Zone: zone, Groups: []SlotGroup{}}

	list := generated.Slots()
	if len(list) == 0 {
		for _, g := range generated.Groups {
			view.Groups = append(view.Groups, SlotGroup{Shift: g.Shift, Slots: []SlotState{}})
		}
		return view, nil
	}

	occ, err := s.occupancyFor(capacity)(ctx, generated.Date, list)
	if err != nil {
		s.log.Warn().Err(err).Str("date", generated.Date).Msg("occupancy unavailable")
		return SlotView{}, fmt.Errorf("%w: %v", ErrOccupancyUnavailable, err)
	}

	for _, g := range generated.Groups {
		group := SlotGroup{Shift: g.Shift, Slots: make([]SlotState, 0, len(g.Slots))}
		for _, slot := range g.Slots {
			so, _ := occ.Lookup(slot)
			stats := so.Stats
			if z, ok := so.Zone(zone); ok {
				stats = z.Stats
			}
			group.Slots = append(group.Slots, SlotState{
				Slot:       slot,
				Occupancy:  so,
				Tier:       stats.Tier(),
				Selectable: !occ.Full(slot, zone),
			})
		}
		view.Groups = append(view.Groups, group)
	}
	return view, nil
}

// occupancyFor reads reservations of one date and aggregates them against capacity.
func (s *Session) occupancyFor(capacity availability.Capacity) calendar.FetchFunc {
	return func(ctx context.Context, date string, list []slots.Slot) (availability.Occupancy, error) {
		reservations, err := s.src.Reservations(ctx, s.businessID, date)
		if err != nil {
			return availability.Occupancy{}, fmt.Errorf("reservations for %s: %w", date, err)
		}
		return availability.Aggregate(list, reservations, capacity), nil
	}
}

// Workshops lists the sessions that can still be booked.
func (s *Session) Workshops(ctx context.Context) ([]mode.WorkshopSession, error) {
	sessions, err := s.src.Workshops(ctx, s.businessID)
	if err != nil {
		return nil, fmt.Errorf("workshops: %w", err)
	}
	if w, ok := s.mode.(mode.Workshop); ok && len(sessions) == 0 {
		sessions = w.Sessions
	}
	return mode.AvailableSessions(sessions, s.now().In(s.cfg.Loc())), nil
}

// Submit shapes req for the business's mode and forwards it. Nothing is
// retried: a rejection is returned to the caller as ErrSubmissionRejected.
func (s *Session) Submit(ctx context.Context, req mode.Request) (mode.Payload, error) {
	req.BusinessID = s.businessID
	kind := string(s.mode.Kind())

	p, err := mode.BuildPayload(s.mode, req, s.now())
	if err != nil {
		metrics.IncSubmission(kind, "invalid")
		return mode.Payload{}, err
	}

	if err := s.sub.Submit(ctx, p); err != nil {
		if errors.Is(err, ErrSubmissionRejected) {
			metrics.IncSubmission(kind, "rejected")
			s.log.Info().Str("reference", p.Reference).Msg("submission rejected")
			return mode.Payload{}, err
		}
		metrics.IncSubmission(kind, "error")
		s.log.Error().Err(err).Str("reference", p.Reference).Msg("submission failed")
		return mode.Payload{}, fmt.Errorf("submit booking: %w", err)
	}

	metrics.IncSubmission(kind, "accepted")
	s.log.Info().Str("reference", p.Reference).Str("mode", kind).Msg("booking submitted")
	return p, nil
}
