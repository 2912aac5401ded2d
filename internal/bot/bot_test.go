package bot

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservo/internal/availability"
	"reservo/internal/calendar"
	"reservo/internal/mode"
	"reservo/internal/schedule"
	"reservo/internal/slots"
	"reservo/internal/widget"
)

var testNow = time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)

type fakeTelegram struct {
	mu   sync.Mutex
	sent []tgbotapi.Chattable
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeTelegram) SelfUser() tgbotapi.User {
	return tgbotapi.User{UserName: "reservo_bot"}
}

func (f *fakeTelegram) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	msg, ok := f.sent[len(f.sent)-1].(tgbotapi.MessageConfig)
	require.True(t, ok)
	return msg
}

func (f *fakeTelegram) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

type fakeBackend struct {
	submitErr error
	submitted []mode.Payload
}

func (f *fakeBackend) BusinessConfig(context.Context, string) (schedule.Raw, mode.Raw, error) {
	hours := schedule.Raw{
		ScheduleType: "continuous",
		WorkDays:     schedule.DayList{"1", "2", "3", "4", "5"},
		OpenTime:     "09:00",
		CloseTime:    "12:00",
		SlotDuration: 60,
	}
	tables := mode.Raw{
		BookingMode: "table",
		Zones:       []mode.Zone{{Name: "A", Capacity: 2}, {Name: "B", Capacity: 2}},
	}
	return hours, tables, nil
}

func (f *fakeBackend) Reservations(_ context.Context, _, date string) ([]availability.Reservation, error) {
	if date == "2026-01-16" {
		return []availability.Reservation{{Date: date, Time: "10:00", Zone: "A", Units: 2}}, nil
	}
	return nil, nil
}

func (f *fakeBackend) Workshops(context.Context, string) ([]mode.WorkshopSession, error) {
	return nil, nil
}

func (f *fakeBackend) Submit(_ context.Context, p mode.Payload) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, p)
	return nil
}

func newTestBot(t *testing.T, backend *fakeBackend) (*Bot, *fakeTelegram) {
	t.Helper()
	tg := &fakeTelegram{}
	log := zerolog.New(io.Discard)
	b, err := NewWithTelegramClient(tg, "biz", backend, backend,
		widget.Options{Now: func() time.Time { return testNow }, Concurrency: 2}, &log)
	require.NoError(t, err)
	return b, tg
}

func message(userID int64, text string) *tgbotapi.Update {
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func callback(userID int64, data string) *tgbotapi.Update {
	return &tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func buttons(markup any) map[string]string {
	out := map[string]string{}
	kb, ok := markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		return out
	}
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				out[*btn.CallbackData] = btn.Text
			}
		}
	}
	return out
}

func TestNormalizeAndValidatePhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		ok       bool
	}{
		{"+7 999 123-45-67", "+79991234567", true},
		{"89991234567", "89991234567", true},
		{"(555) 010-0199", "5550100199", true},
		{"123", "", false},
		{"", "", false},
		{"+1234567890123456", "", false},
	}

	for _, tt := range tests {
		res, ok := normalizeAndValidatePhone(tt.input)
		assert.Equal(t, tt.ok, ok, "input: %s", tt.input)
		assert.Equal(t, tt.expected, res, "input: %s", tt.input)
	}
}

func TestCalendarKeyboard(t *testing.T) {
	days := []calendar.Day{
		{Date: "2026-01-14", Status: calendar.StatusPast},
		{Date: "2026-01-15", Status: calendar.StatusOpen},
		{Date: "2026-01-17", Status: calendar.StatusClosed},
		{Date: "2026-01-21", Status: calendar.StatusFull, Unverified: true},
		{Date: "2026-01-22", Status: calendar.StatusFull},
	}
	kb := CalendarKeyboard(2026, time.January, days)
	rows := kb.InlineKeyboard

	assert.Equal(t, "Январь 2026", rows[0][1].Text)
	assert.Equal(t, "month:2025-12", *rows[0][0].CallbackData)
	assert.Equal(t, "month:2026-02", *rows[0][2].CallbackData)
	assert.Equal(t, "Пн", rows[1][0].Text)

	// January 1st 2026 is a Thursday.
	firstWeek := rows[2]
	require.Len(t, firstWeek, 7)
	for col := 0; col < 3; col++ {
		assert.Equal(t, " ", firstWeek[col].Text)
	}

	labels := map[string]string{}
	for _, row := range rows[2 : len(rows)-1] {
		for _, btn := range row {
			if btn.CallbackData != nil && *btn.CallbackData != "noop" {
				labels[*btn.CallbackData] = btn.Text
			}
		}
	}
	assert.Equal(t, map[string]string{"date:2026-01-15": "15"}, labels)

	grid := map[int]string{}
	day := 0
	for _, row := range rows[2 : len(rows)-1] {
		for _, btn := range row {
			if btn.Text == " " {
				continue
			}
			day++
			grid[day] = btn.Text
		}
	}
	assert.Equal(t, 31, day)
	assert.Equal(t, markPast, grid[14])
	assert.Equal(t, markClosed, grid[17])
	assert.Equal(t, markUnverified, grid[21])
	assert.Equal(t, markFull, grid[22])
	assert.Equal(t, markClosed, grid[30], "dates missing from the month are not bookable")

	assert.Equal(t, "back:item", *rows[len(rows)-1][0].CallbackData)
}

func TestSlotsKeyboard(t *testing.T) {
	state := func(at int, tier availability.Tier, selectable bool) widget.SlotState {
		return widget.SlotState{Slot: slots.Slot{Date: "2026-01-16", Time: schedule.Clock(at)}, Tier: tier, Selectable: selectable}
	}
	view := widget.SlotView{
		Date:  "2026-01-16",
		Split: true,
		Groups: []widget.SlotGroup{
			{Shift: "Утро", Slots: []widget.SlotState{
				state(9*60, availability.TierOpen, true),
				state(10*60, availability.TierExhausted, false),
				state(11*60, availability.TierNear, true),
				state(12*60, availability.TierOpen, true),
			}},
			{Shift: "Вечер", Slots: []widget.SlotState{state(18*60, availability.TierOpen, true)}},
		},
	}

	rows := SlotsKeyboard(view).InlineKeyboard
	require.Len(t, rows, 6)
	assert.Equal(t, "— Утро —", rows[0][0].Text)
	assert.Len(t, rows[1], 3)
	assert.Equal(t, "⛔ 10:00", rows[1][1].Text)
	assert.Equal(t, "noop", *rows[1][1].CallbackData)
	assert.Equal(t, "🔸 11:00", rows[1][2].Text)
	assert.Equal(t, "slot:11:00", *rows[1][2].CallbackData)
	assert.Len(t, rows[2], 1)
	assert.Equal(t, "— Вечер —", rows[3][0].Text)
	assert.Equal(t, "slot:18:00", *rows[4][0].CallbackData)
	assert.Equal(t, "back:date", *rows[5][0].CallbackData)
}

func TestSlotsKeyboard_NothingSelectable(t *testing.T) {
	rows := SlotsKeyboard(widget.SlotView{Date: "2026-01-17"}).InlineKeyboard
	require.Len(t, rows, 2)
	assert.Equal(t, "Нет свободного времени", rows[0][0].Text)
}

func TestItemsKeyboard(t *testing.T) {
	disabled := false
	m := mode.Table{Zones: []mode.Zone{
		{Name: "Terrace", Capacity: 10},
		{Name: "Cellar", Capacity: 4, Enabled: &disabled},
		{Name: "Bar", Capacity: 0},
	}}
	assert.Equal(t, map[string]string{"zone:Terrace": "Terrace"}, buttons(ItemsKeyboard(m, nil)))

	ws := []mode.WorkshopSession{{ID: "w1", Title: "Pottery", Date: "2026-01-20", Start: 18 * 60, Capacity: 10, Booked: 3}}
	assert.Equal(t, map[string]string{"ws:w1": "Pottery, 2026-01-20 18:00 (мест: 7)"}, buttons(ItemsKeyboard(mode.Workshop{}, ws)))

	empty := ItemsKeyboard(mode.Class{}, nil)
	assert.Equal(t, "Нет доступных вариантов", empty.InlineKeyboard[0][0].Text)
}

func TestBookingFlow_Table(t *testing.T) {
	backend := &fakeBackend{}
	b, tg := newTestBot(t, backend)
	ctx := context.Background()
	const user = int64(42)

	b.handleUpdate(ctx, message(user, "/book"))
	assert.Contains(t, buttons(tg.last(t).ReplyMarkup), "zone:A")

	b.handleUpdate(ctx, callback(user, "zone:A"))
	cal := buttons(tg.last(t).ReplyMarkup)
	assert.Equal(t, "16", cal["date:2026-01-16"])
	assert.NotContains(t, cal, "date:2026-01-14")

	b.handleUpdate(ctx, callback(user, "date:2026-01-16"))
	slotButtons := buttons(tg.last(t).ReplyMarkup)
	assert.Contains(t, slotButtons, "slot:09:00")
	assert.NotContains(t, slotButtons, "slot:10:00")

	b.handleUpdate(ctx, callback(user, "slot:09:00"))
	assert.Equal(t, "Введите ваше имя:", tg.last(t).Text)

	b.handleUpdate(ctx, message(user, "Ann"))
	b.handleUpdate(ctx, message(user, "+7 999 123-45-67"))
	assert.Contains(t, tg.last(t).Text, "Гостей: 2")

	b.handleUpdate(ctx, callback(user, "confirm"))
	require.Len(t, backend.submitted, 1)
	p := backend.submitted[0]
	assert.Equal(t, "biz", p.BusinessID)
	assert.Equal(t, "A", p.Zone)
	assert.Equal(t, "2026-01-16", p.Date)
	assert.Equal(t, "09:00", p.Time)
	assert.Equal(t, 2, p.PartySize)
	assert.Equal(t, "+79991234567", p.Customer.Phone)
	assert.False(t, p.ContactConsent)
	assert.Contains(t, tg.texts(), fmt.Sprintf("Заявка отправлена. Номер: %s", p.Reference))
	assert.Equal(t, stepNone, b.state.get(user).Step)
}

func TestBookingFlow_ContactConsent(t *testing.T) {
	backend := &fakeBackend{}
	b, tg := newTestBot(t, backend)
	ctx := context.Background()
	const user = int64(11)

	b.handleUpdate(ctx, message(user, "/book"))
	b.handleUpdate(ctx, callback(user, "zone:B"))
	b.handleUpdate(ctx, callback(user, "date:2026-01-16"))
	b.handleUpdate(ctx, callback(user, "slot:10:00"))
	b.handleUpdate(ctx, message(user, "Eve"))
	b.handleUpdate(ctx, message(user, "eve@example.com"))
	assert.Contains(t, tg.last(t).Text, "Согласие на связь: нет")
	assert.Equal(t, "⬜ Согласен на связь", buttons(tg.last(t).ReplyMarkup)["consent"])

	b.handleUpdate(ctx, callback(user, "consent"))
	assert.Contains(t, tg.last(t).Text, "Согласие на связь: да")
	assert.Equal(t, "☑️ Согласен на связь", buttons(tg.last(t).ReplyMarkup)["consent"])

	b.handleUpdate(ctx, callback(user, "confirm"))
	require.Len(t, backend.submitted, 1)
	assert.True(t, backend.submitted[0].ContactConsent)
	assert.Equal(t, "eve@example.com", backend.submitted[0].Customer.Email)
}

func TestBookingFlow_RejectedShowsSlotsAgain(t *testing.T) {
	backend := &fakeBackend{submitErr: fmt.Errorf("%w: taken", widget.ErrSubmissionRejected)}
	b, tg := newTestBot(t, backend)
	ctx := context.Background()
	const user = int64(7)

	b.handleUpdate(ctx, message(user, "/book"))
	b.handleUpdate(ctx, callback(user, "zone:B"))
	b.handleUpdate(ctx, callback(user, "date:2026-01-16"))
	b.handleUpdate(ctx, callback(user, "slot:10:00"))
	b.handleUpdate(ctx, message(user, "Bob"))
	b.handleUpdate(ctx, message(user, "bob@example.com"))
	b.handleUpdate(ctx, callback(user, "confirm"))

	assert.Empty(t, backend.submitted)
	assert.Contains(t, tg.texts(), "Это время уже заняли. Выберите другое.")
	assert.Contains(t, buttons(tg.last(t).ReplyMarkup), "slot:10:00")
	assert.Equal(t, stepTime, b.state.get(user).Step)
}

func TestBookingFlow_InvalidPhone(t *testing.T) {
	b, tg := newTestBot(t, &fakeBackend{})
	ctx := context.Background()
	const user = int64(9)

	b.handleUpdate(ctx, message(user, "/book"))
	b.handleUpdate(ctx, callback(user, "zone:A"))
	b.handleUpdate(ctx, callback(user, "date:2026-01-16"))
	b.handleUpdate(ctx, callback(user, "slot:09:00"))
	b.handleUpdate(ctx, message(user, "Ann"))
	b.handleUpdate(ctx, message(user, "123"))

	assert.Equal(t, "Некорректный телефон. Пример: +7 999 123-45-67", tg.last(t).Text)
	assert.Equal(t, stepContact, b.state.get(user).Step)
}

func TestNew_RequiresBusiness(t *testing.T) {
	_, err := NewWithTelegramClient(&fakeTelegram{}, "", &fakeBackend{}, &fakeBackend{}, widget.Options{}, nil)
	assert.Error(t, err)
	_, err = NewWithTelegramClient(nil, "biz", &fakeBackend{}, &fakeBackend{}, widget.Options{}, nil)
	assert.Error(t, err)
}
