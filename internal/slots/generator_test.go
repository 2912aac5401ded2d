package slots

import (
	"encoding/json"
	"testing"
	"time"

	"reservo/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clock(t *testing.T, s string) schedule.Clock {
	t.Helper()
	c, err := schedule.ParseClock(s)
	require.NoError(t, err)
	return c
}

func labels(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time.String()
	}
	return out
}

// Thursday.
var baseDate = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func farPast() time.Time {
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestGenerate_Continuous(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.Open = clock(t, "09:00")
	cfg.Close = clock(t, "18:00")
	cfg.SlotMinutes = 30

	day := Generate(cfg, baseDate, farPast())

	assert.False(t, day.Split)
	require.Len(t, day.Groups, 1)
	slots := day.Slots()
	require.Len(t, slots, 18)
	assert.Equal(t, "09:00", slots[0].Time.String())
	assert.Equal(t, "17:30", slots[len(slots)-1].Time.String())
	assert.Equal(t, "2026-01-15", slots[0].Date)
}

func TestGenerate_NoTruncatedSlotAtBoundary(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.Open = clock(t, "09:00")
	cfg.Close = clock(t, "10:45")
	cfg.SlotMinutes = 30

	day := Generate(cfg, baseDate, farPast())

	// 10:30 starts before 10:45 and is emitted; nothing starts at 10:45.
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, labels(day.Slots()))
}

func TestGenerate_SplitGroupsByShift(t *testing.T) {
	cfg, issues := schedule.Resolve(schedule.Raw{
		ScheduleType: "split",
		SlotDuration: 60,
		Shifts: []schedule.RawShift{
			{Name: "Morning", StartTime: "09:00", EndTime: "13:00", ActiveDays: schedule.DayList{"4"}},
			{Name: "Evening", StartTime: "16:00", EndTime: "20:00", ActiveDays: schedule.DayList{"4", "5"}},
		},
	})
	require.Empty(t, issues)

	day := Generate(cfg, baseDate, farPast())

	assert.True(t, day.Split)
	require.Len(t, day.Groups, 2)
	assert.Equal(t, "Morning", day.Groups[0].Shift)
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00"}, labels(day.Groups[0].Slots))
	assert.Equal(t, "Evening", day.Groups[1].Shift)
	assert.Equal(t, []string{"16:00", "17:00", "18:00", "19:00"}, labels(day.Groups[1].Slots))
	assert.Equal(t, "Evening", day.Groups[1].Slots[0].Shift)

	// Friday only has the evening shift.
	friday := Generate(cfg, baseDate.AddDate(0, 0, 1), farPast())
	require.Len(t, friday.Groups, 1)
	assert.Equal(t, "Evening", friday.Groups[0].Shift)
}

func TestGenerate_ClosedDayIsEmpty(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.WorkDays = schedule.NewWeekdaySet(1, 2, 3)

	day := Generate(cfg, baseDate, farPast())

	assert.True(t, day.Closed())
	assert.Zero(t, day.Len())
	assert.Empty(t, day.Slots())
}

func TestGenerate_TodayFiltersByStrictlyLaterStart(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.Open = clock(t, "14:00")
	cfg.Close = clock(t, "16:00")
	cfg.SlotMinutes = 5

	now := time.Date(2026, 1, 15, 14, 35, 0, 0, time.UTC)
	got := labels(Generate(cfg, baseDate, now).Slots())

	assert.NotContains(t, got, "14:30")
	assert.NotContains(t, got, "14:35")
	assert.Equal(t, "14:40", got[0])
	assert.Contains(t, got, "15:00")
}

func TestGenerate_TodayWithSecondsPastMinute(t *testing.T) {
	cfg := schedule.DefaultConfig()
	cfg.Open = clock(t, "14:00")
	cfg.Close = clock(t, "15:00")
	cfg.SlotMinutes = 30

	now := time.Date(2026, 1, 15, 14, 29, 59, 0, time.UTC)
	assert.Equal(t, []string{"14:30"}, labels(Generate(cfg, baseDate, now).Slots()))
}

func TestGenerate_OtherDateIsNotFiltered(t *testing.T) {
	cfg := schedule.DefaultConfig()
	now := time.Date(2026, 1, 14, 23, 0, 0, 0, time.UTC)

	day := Generate(cfg, baseDate, now)

	assert.Equal(t, 22, day.Len())
}

func TestGenerate_TodayUsesBusinessLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	cfg := schedule.DefaultConfig()
	cfg.Location = loc
	cfg.Open = clock(t, "09:00")
	cfg.Close = clock(t, "12:00")
	cfg.SlotMinutes = 60

	// 15:30 UTC is 10:30 in New York (January, UTC-5).
	now := time.Date(2026, 1, 15, 15, 30, 0, 0, time.UTC)
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, loc)

	assert.Equal(t, []string{"11:00"}, labels(Generate(cfg, date, now).Slots()))
}

func TestSlotKeyRoundTrip(t *testing.T) {
	s := Slot{Date: "2026-01-15", Time: clock(t, "09:30")}
	assert.Equal(t, "2026-01-15 09:30", s.Key())
	assert.Equal(t, s.Key(), Key("2026-01-15", clock(t, "09:30:00")))
}

func TestSlot_JSON(t *testing.T) {
	data, err := json.Marshal(Slot{Date: "2026-01-15", Time: clock(t, "09:30"), Shift: "Morning"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2026-01-15","time":"09:30","shift":"Morning"}`, string(data))
}
