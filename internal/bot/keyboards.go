package bot

import (
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"reservo/internal/availability"
	"reservo/internal/calendar"
	"reservo/internal/mode"
	"reservo/internal/widget"
)

// Day marks used on the month keyboard.
const (
	markPast       = "·"
	markClosed     = "—"
	markFull       = "✖"
	markUnverified = "?"
)

var monthNames = [...]string{
	"", "Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

func noop(label string) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(label, "noop")
}

func backRow(step string) []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "back:"+step))
}

func dayLabel(d calendar.Day, day int) (label, data string) {
	switch d.Status {
	case calendar.StatusOpen:
		return strconv.Itoa(day), "date:" + d.Date
	case calendar.StatusFull:
		if d.Unverified {
			return markUnverified, "noop"
		}
		return markFull, "noop"
	case calendar.StatusClosed:
		return markClosed, "noop"
	default:
		return markPast, "noop"
	}
}

// CalendarKeyboard renders a Monday-first month grid. Only open days can be
// tapped; past, closed, full and unverified days show a mark instead of the number.
func CalendarKeyboard(year int, month time.Month, days []calendar.Day) tgbotapi.InlineKeyboardMarkup {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	byDate := make(map[string]calendar.Day, len(days))
	for _, d := range days {
		byDate[d.Date] = d
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 9)
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("◀", "month:"+prev.Format("2006-01")),
		noop(fmt.Sprintf("%s %d", monthNames[month], year)),
		tgbotapi.NewInlineKeyboardButtonData("▶", "month:"+next.Format("2006-01")),
	))
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		noop("Пн"), noop("Вт"), noop("Ср"), noop("Чт"), noop("Пт"), noop("Сб"), noop("Вс"),
	))

	offset := int(first.Weekday())
	if offset == 0 {
		offset = 7
	}

	day := 1
	for day <= daysInMonth {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for col := 1; col <= 7; col++ {
			if (len(rows) == 2 && col < offset) || day > daysInMonth {
				row = append(row, noop(" "))
				continue
			}
			date := fmt.Sprintf("%04d-%02d-%02d", year, int(month), day)
			d, ok := byDate[date]
			if !ok {
				d = calendar.Day{Date: date, Status: calendar.StatusClosed}
			}
			label, data := dayLabel(d, day)
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
			day++
		}
		rows = append(rows, row)
	}

	rows = append(rows, backRow("item"))
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// SlotsKeyboard renders the slots of one date in rows of three, with a header
// row per shift on split schedules.
func SlotsKeyboard(view widget.SlotView) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	for _, g := range view.Groups {
		if view.Split && g.Shift != "" {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(noop("— "+g.Shift+" —")))
		}
		var current []tgbotapi.InlineKeyboardButton
		for _, s := range g.Slots {
			label := s.Time.String()
			data := "slot:" + label
			switch {
			case !s.Selectable:
				label = "⛔ " + label
				data = "noop"
			case s.Tier == availability.TierNear:
				label = "🔸 " + label
			}
			current = append(current, tgbotapi.NewInlineKeyboardButtonData(label, data))
			if len(current) == 3 {
				rows = append(rows, current)
				current = nil
			}
		}
		if len(current) > 0 {
			rows = append(rows, current)
		}
	}
	if view.Selectable() == 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(noop("Нет свободного времени")))
	}
	rows = append(rows, backRow("date"))
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ItemsKeyboard lists what the customer books first: services, classes, table
// zones or workshop sessions, depending on the mode.
func ItemsKeyboard(m mode.Mode, sessions []mode.WorkshopSession) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0)
	add := func(label, data string) {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}

	switch v := m.(type) {
	case mode.Appointment:
		for _, s := range v.Services {
			add(s.Name, "svc:"+s.ID)
		}
	case mode.Class:
		for _, c := range v.Classes {
			add(c.Name, "cls:"+c.ID)
		}
	case mode.Table:
		for _, z := range mode.ActiveZones(v.Zones) {
			add(z.Name, "zone:"+z.Name)
		}
	case mode.Workshop:
		for _, s := range sessions {
			add(fmt.Sprintf("%s, %s %s (мест: %d)", s.Title, s.Date, s.Start, s.Remaining()), "ws:"+s.ID)
		}
	}
	if len(rows) == 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(noop("Нет доступных вариантов")))
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// ProfessionalsKeyboard lists the professionals of an appointment business.
func ProfessionalsKeyboard(pros []mode.Professional) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(pros)+1)
	for _, p := range pros {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(p.Name, "pro:"+p.ID)))
	}
	rows = append(rows, backRow("item"))
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func confirmKeyboard(consent bool) tgbotapi.InlineKeyboardMarkup {
	consentText := "⬜ Согласен на связь"
	if consent {
		consentText = "☑️ Согласен на связь"
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(consentText, "consent"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Подтвердить", "confirm"),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отмена", "cancel"),
		),
	)
}
