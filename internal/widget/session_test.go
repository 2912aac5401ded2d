package widget

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reservo/internal/availability"
	"reservo/internal/calendar"
	"reservo/internal/mode"
	"reservo/internal/schedule"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) BusinessConfig(ctx context.Context, businessID string) (schedule.Raw, mode.Raw, error) {
	args := m.Called(ctx, businessID)
	return args.Get(0).(schedule.Raw), args.Get(1).(mode.Raw), args.Error(2)
}

func (m *mockSource) Reservations(ctx context.Context, businessID, date string) ([]availability.Reservation, error) {
	args := m.Called(ctx, businessID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]availability.Reservation), args.Error(1)
}

func (m *mockSource) Workshops(ctx context.Context, businessID string) ([]mode.WorkshopSession, error) {
	args := m.Called(ctx, businessID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mode.WorkshopSession), args.Error(1)
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, p mode.Payload) error {
	return m.Called(ctx, p).Error(0)
}

var (
	testNow = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	logger  = zerolog.New(io.Discard)
)

func options() Options {
	return Options{Now: func() time.Time { return testNow }, Concurrency: 4, Logger: &logger}
}

func hourly() schedule.Raw {
	return schedule.Raw{
		ScheduleType: "continuous",
		WorkDays:     schedule.DayList{"1", "2", "3", "4", "5"},
		OpenTime:     "09:00",
		CloseTime:    "12:00",
		SlotDuration: 60,
	}
}

func tableMode() mode.Raw {
	return mode.Raw{BookingMode: "table", Zones: []mode.Zone{{Name: "A", Capacity: 2}, {Name: "B", Capacity: 2}}}
}

func TestOpen_ConfigFailureFallsBackToDefaults(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(schedule.Raw{}, mode.Raw{}, errors.New("timeout")).Once()

	s := Open(context.Background(), "biz", src, nil, options())

	assert.True(t, s.Defaulted())
	assert.Equal(t, schedule.DefaultConfig(), s.Config())
	assert.Equal(t, mode.KindAppointment, s.Mode().Kind())
	src.AssertExpectations(t)
}

func TestSelectDate_ZonedOccupancy(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(hourly(), tableMode(), nil).Once()
	src.On("Reservations", mock.Anything, "biz", "2026-01-15").Return([]availability.Reservation{
		{Date: "2026-01-15", Time: "09:00", Zone: "A", Units: 2, Status: "confirmed"},
		{Date: "2026-01-15", Time: "10:00", Zone: "A", Units: 2, Status: "cancelled"},
	}, nil)

	s := Open(context.Background(), "biz", src, nil, options())
	require.False(t, s.Defaulted())

	view, err := s.SelectDate(context.Background(), "2026-01-15", mode.Selection{Zone: "A"})
	require.NoError(t, err)

	require.Len(t, view.Groups, 1)
	require.Len(t, view.Groups[0].Slots, 3)
	first := view.Groups[0].Slots[0]
	assert.Equal(t, "09:00", first.Time.String())
	assert.False(t, first.Selectable)
	assert.Equal(t, availability.TierExhausted, first.Tier)
	assert.True(t, view.Groups[0].Slots[1].Selectable)
	assert.Equal(t, 2, view.Selectable())

	// Zone B still has room at 09:00.
	view, err = s.SelectDate(context.Background(), "2026-01-15", mode.Selection{Zone: "B"})
	require.NoError(t, err)
	assert.Equal(t, 3, view.Selectable())

	assert.Equal(t, "2026-01-15", s.State().Date)
	assert.Equal(t, "B", s.State().Selection.Zone)
}

func TestSelectDate_FailsClosed(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(hourly(), mode.Raw{BookingMode: "appointment"}, nil).Once()
	src.On("Reservations", mock.Anything, "biz", "2026-01-16").Return(nil, errors.New("503")).Once()

	s := Open(context.Background(), "biz", src, nil, options())
	_, err := s.SelectDate(context.Background(), "2026-01-16", mode.Selection{})

	assert.ErrorIs(t, err, ErrOccupancyUnavailable)
	assert.True(t, Retryable(err))
}

func TestSelectDate_ClosedDayDoesNotFetch(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(hourly(), mode.Raw{BookingMode: "appointment"}, nil).Once()

	s := Open(context.Background(), "biz", src, nil, options())
	view, err := s.SelectDate(context.Background(), "2026-01-17", mode.Selection{})

	require.NoError(t, err)
	assert.Empty(t, view.Groups)
	src.AssertNotCalled(t, "Reservations", mock.Anything, mock.Anything, mock.Anything)
}

func TestSelectDate_StaleResponseDiscarded(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(hourly(), mode.Raw{BookingMode: "appointment"}, nil).Once()

	started := make(chan struct{})
	release := make(chan struct{})
	src.On("Reservations", mock.Anything, "biz", "2026-01-19").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, nil).Once()
	src.On("Reservations", mock.Anything, "biz", "2026-01-20").Return(nil, nil).Once()

	s := Open(context.Background(), "biz", src, nil, options())

	type result struct {
		view SlotView
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		v, err := s.SelectDate(context.Background(), "2026-01-19", mode.Selection{})
		slow <- result{v, err}
	}()

	<-started
	view, err := s.SelectDate(context.Background(), "2026-01-20", mode.Selection{})
	require.NoError(t, err)
	assert.Equal(t, "2026-01-20", view.Date)
	close(release)

	select {
	case r := <-slow:
		assert.ErrorIs(t, r.err, ErrStale)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded request did not return")
	}
	assert.Equal(t, "2026-01-20", s.State().Date)
	src.AssertExpectations(t)
}

func TestShowMonth(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(hourly(), mode.Raw{BookingMode: "appointment"}, nil).Once()
	src.On("Reservations", mock.Anything, "biz", "2026-01-16").Return([]availability.Reservation{
		{Date: "2026-01-16", Time: "09:00"},
		{Date: "2026-01-16", Time: "10:00"},
		{Date: "2026-01-16", Time: "11:00"},
	}, nil)
	src.On("Reservations", mock.Anything, "biz", "2026-01-22").Return(nil, errors.New("boom"))
	src.On("Reservations", mock.Anything, "biz", mock.Anything).Return(nil, nil)

	s := Open(context.Background(), "biz", src, nil, options())
	month, err := s.ShowMonth(context.Background(), 2026, time.January, mode.Selection{})
	require.NoError(t, err)

	statuses := make(map[string]calendar.Day, len(month.Days))
	for _, d := range month.Days {
		statuses[d.Date] = d
	}
	assert.Equal(t, calendar.StatusPast, statuses["2026-01-14"].Status)
	assert.Equal(t, calendar.StatusOpen, statuses["2026-01-15"].Status)
	assert.Equal(t, calendar.StatusFull, statuses["2026-01-16"].Status)
	assert.Equal(t, calendar.StatusClosed, statuses["2026-01-18"].Status)
	assert.Equal(t, calendar.StatusFull, statuses["2026-01-22"].Status)
	assert.True(t, statuses["2026-01-22"].Unverified)
}

func TestWorkshopsMode(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(schedule.Raw{}, mode.Raw{BookingMode: "workshop"}, nil).Once()
	src.On("Workshops", mock.Anything, "biz").Return([]mode.WorkshopSession{
		{ID: "past", Date: "2026-01-01", Start: 600, Capacity: 4},
		{ID: "open", Date: "2026-01-20", Start: 600, Capacity: 4, Booked: 1},
	}, nil).Once()

	s := Open(context.Background(), "biz", src, nil, options())

	_, err := s.SelectDate(context.Background(), "2026-01-20", mode.Selection{})
	assert.ErrorIs(t, err, ErrSlotsUnsupported)

	sessions, err := s.Workshops(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "open", sessions[0].ID)
}

func TestSubmit(t *testing.T) {
	src := new(mockSource)
	src.On("BusinessConfig", mock.Anything, "biz").Return(hourly(), tableMode(), nil).Once()
	sub := new(mockSubmitter)

	s := Open(context.Background(), "biz", src, sub, options())
	req := mode.Request{
		Zone:     "A",
		Date:     "2026-01-20",
		Time:     "10:00",
		Customer: mode.Customer{Name: "Ada", Email: "ada@example.com"},
	}

	t.Run("Accepted", func(t *testing.T) {
		sub.On("Submit", mock.Anything, mock.MatchedBy(func(p mode.Payload) bool {
			return p.BusinessID == "biz" && p.Zone == "A" && p.PartySize == 2
		})).Return(nil).Once()

		p, err := s.Submit(context.Background(), req)
		require.NoError(t, err)
		assert.NotEmpty(t, p.Reference)
		sub.AssertExpectations(t)
	})

	t.Run("Rejected", func(t *testing.T) {
		sub.On("Submit", mock.Anything, mock.Anything).Return(ErrSubmissionRejected).Once()

		_, err := s.Submit(context.Background(), req)
		assert.ErrorIs(t, err, ErrSubmissionRejected)
		assert.True(t, Retryable(err))
	})

	t.Run("Invalid", func(t *testing.T) {
		bad := req
		bad.Zone = ""
		_, err := s.Submit(context.Background(), bad)
		assert.ErrorIs(t, err, mode.ErrInvalidRequest)
		assert.False(t, Retryable(err))
	})
}
