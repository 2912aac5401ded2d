package calendar

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservo/internal/availability"
	"reservo/internal/schedule"
	"reservo/internal/slots"
)

// Weekdays only, three hourly slots.
func weekdayConfig() schedule.Config {
	cfg := schedule.DefaultConfig()
	cfg.WorkDays = schedule.NewWeekdaySet(1, 2, 3, 4, 5)
	cfg.Open = 9 * 60
	cfg.Close = 12 * 60
	cfg.SlotMinutes = 60
	return cfg
}

func fullyBooked(date string) []availability.Reservation {
	return []availability.Reservation{
		{Date: date, Time: "09:00", Units: 1},
		{Date: date, Time: "10:00", Units: 1},
		{Date: date, Time: "11:00", Units: 1},
	}
}

func byDate(days []Day) map[string]Day {
	out := make(map[string]Day, len(days))
	for _, d := range days {
		out[d.Date] = d
	}
	return out
}

func TestClassifyMonth(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	var looked []string
	lookup := func(date string) (availability.Occupancy, bool) {
		looked = append(looked, date)
		if date == "2026-01-20" {
			return availability.Occupancy{}, false
		}
		d, err := slots.ParseDate(date, time.UTC)
		require.NoError(t, err)
		list := slots.Generate(cfg, d, now).Slots()
		var res []availability.Reservation
		if date == "2026-01-16" {
			res = fullyBooked(date)
		}
		return availability.Aggregate(list, res, availability.Capacity{Total: 1}), true
	}

	days := ClassifyMonth(cfg, 2026, time.January, now, lookup, "")
	require.Len(t, days, 31)
	got := byDate(days)

	assert.Equal(t, StatusPast, got["2026-01-14"].Status)
	assert.Equal(t, StatusOpen, got["2026-01-15"].Status, "today with slots left")
	assert.Equal(t, StatusFull, got["2026-01-16"].Status)
	assert.False(t, got["2026-01-16"].Unverified)
	assert.Equal(t, StatusClosed, got["2026-01-17"].Status)
	assert.Equal(t, 6, got["2026-01-17"].Weekday)
	assert.Equal(t, StatusOpen, got["2026-01-19"].Status)

	assert.Equal(t, StatusFull, got["2026-01-20"].Status)
	assert.True(t, got["2026-01-20"].Unverified)

	assert.NotContains(t, looked, "2026-01-17", "closed days are not looked up")
	assert.NotContains(t, looked, "2026-01-14", "past days are not looked up")
}

func TestClassifyDate_ClosedBeatsOccupancy(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	saturday := time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC)

	lookup := func(string) (availability.Occupancy, bool) {
		t.Fatal("closed date must not be looked up")
		return availability.Occupancy{}, false
	}

	assert.Equal(t, StatusClosed, ClassifyDate(cfg, saturday, now, lookup, "").Status)
}

func TestClassifyDate_NoRemainingSlotsIsFull(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 15, 12, 30, 0, 0, time.UTC)

	d := ClassifyDate(cfg, now, now, nil, "")

	assert.Equal(t, StatusFull, d.Status)
	assert.False(t, d.Unverified)
}

func TestClassifyDate_ZoneSelection(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	date := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)

	list := slots.Generate(cfg, date, now).Slots()
	var res []availability.Reservation
	for _, s := range list {
		res = append(res, availability.Reservation{Date: s.Date, Time: s.Time.String(), Zone: "A", Units: 4})
	}
	capacity := availability.Capacity{Zones: []availability.ZoneCapacity{{Name: "A", Capacity: 4}, {Name: "B", Capacity: 4}}}
	occ := availability.Aggregate(list, res, capacity)
	lookup := func(string) (availability.Occupancy, bool) { return occ, true }

	assert.Equal(t, StatusOpen, ClassifyDate(cfg, date, now, lookup, "").Status)
	assert.Equal(t, StatusFull, ClassifyDate(cfg, date, now, lookup, "A").Status)
	assert.Equal(t, StatusOpen, ClassifyDate(cfg, date, now, lookup, "B").Status)
}

func TestClassifyMonth_NoEnabledShiftsClosesEverything(t *testing.T) {
	disabled := false
	cfg, _ := schedule.Resolve(schedule.Raw{
		ScheduleType: "split",
		Shifts:       []schedule.RawShift{{Name: "Morning", StartTime: "09:00", EndTime: "12:00", Enabled: &disabled}},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, d := range ClassifyMonth(cfg, 2026, time.February, now, nil, "") {
		assert.Equal(t, StatusClosed, d.Status, d.Date)
	}
}

func TestLoader_LoadMonth(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	var calls atomic.Int32
	fetch := func(_ context.Context, date string, list []slots.Slot) (availability.Occupancy, error) {
		calls.Add(1)
		switch date {
		case "2026-01-16":
			return availability.Aggregate(list, fullyBooked(date), availability.Capacity{Total: 1}), nil
		case "2026-01-21":
			return availability.Occupancy{}, errors.New("upstream down")
		}
		return availability.Aggregate(list, nil, availability.Capacity{Total: 1}), nil
	}

	month, err := NewLoader(fetch, 3, nil).LoadMonth(context.Background(), cfg, 2026, time.January, now, "")
	require.NoError(t, err)

	// Weekdays from the 15th to the 30th.
	assert.EqualValues(t, 12, calls.Load())

	got := byDate(month.Days)
	assert.Equal(t, StatusFull, got["2026-01-16"].Status)
	assert.False(t, got["2026-01-16"].Unverified)
	assert.Equal(t, StatusOpen, got["2026-01-19"].Status)
	assert.Equal(t, StatusFull, got["2026-01-21"].Status)
	assert.True(t, got["2026-01-21"].Unverified)
	assert.True(t, month.Unverified())
	require.Contains(t, month.Errors, "2026-01-21")
	assert.Len(t, month.Errors, 1)
}

func TestLoader_CancelledContext(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetch := func(context.Context, string, []slots.Slot) (availability.Occupancy, error) {
		return availability.Occupancy{}, nil
	}

	_, err := NewLoader(fetch, 0, nil).LoadMonth(ctx, cfg, 2026, time.January, now, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_CancelledWhileFetching(t *testing.T) {
	cfg := weekdayConfig()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fetch := func(ctx context.Context, _ string, _ []slots.Slot) (availability.Occupancy, error) {
		if calls.Add(1) == 1 {
			cancel()
		}
		return availability.Occupancy{}, ctx.Err()
	}

	month, err := NewLoader(fetch, 1, nil).LoadMonth(ctx, cfg, 2026, time.January, now, "")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, month.Days)
	assert.Equal(t, int32(1), calls.Load())
}
