package report

import (
	"fmt"
	"io"

	"reservo/internal/availability"
	"reservo/internal/calendar"
	"reservo/internal/widget"
)

var weekdayNames = [...]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Row fills by day status and occupancy tier.
var (
	statusFills = map[calendar.Status]string{
		calendar.StatusPast:   "EDEDED",
		calendar.StatusClosed: "D9D9D9",
		calendar.StatusFull:   "F8CBAD",
		calendar.StatusOpen:   "C6EFCE",
	}
	tierFills = map[availability.Tier]string{
		availability.TierNear:      "FFEB9C",
		availability.TierExhausted:    "F8CBAD",
	}
)

const unverifiedFill = "FFC7CE"

var (
	dayColumns = []Column{
		{Title: "Business", Width: 16}, {Title: "Date", Width: 12}, {Title: "Weekday", Width: 9},
		{Title: "Status", Width: 9}, {Title: "Unverified", Width: 11}, {Title: "Error", Width: 40},
	}
	slotColumns = []Column{
		{Title: "Date", Width: 12}, {Title: "Shift", Width: 14}, {Title: "Time", Width: 7}, {Title: "Zone", Width: 14},
		{Title: "Total"}, {Title: "Occupied"}, {Title: "Available"}, {Title: "Percent"},
		{Title: "Tier", Width: 14}, {Title: "Selectable", Width: 11},
	}
)

// WriteMonth exports a classified month and, when given, the slot views of
// individual dates.
func WriteMonth(out io.Writer, businessID string, m calendar.Month, views []widget.SlotView) error {
	wb, err := NewWorkbook()
	if err != nil {
		return err
	}
	defer wb.Close()

	days, err := wb.AddSheet(fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)), dayColumns)
	if err != nil {
		return err
	}
	for _, d := range m.Days {
		var errText any
		if err := m.Errors[d.Date]; err != nil {
			errText = err.Error()
		}
		weekday := ""
		if d.Weekday >= 1 && d.Weekday <= 7 {
			weekday = weekdayNames[d.Weekday]
		}
		fill := statusFills[d.Status]
		if d.Unverified {
			fill = unverifiedFill
		}
		if err := days.FilledRow(fill, businessID, d.Date, weekday, string(d.Status), d.Unverified, errText); err != nil {
			return err
		}
	}

	if len(views) > 0 {
		sheet, err := wb.AddSheet("Slots", slotColumns)
		if err != nil {
			return err
		}
		for _, v := range views {
			for _, g := range v.Groups {
				for _, s := range g.Slots {
					if err := slotRow(sheet, s.Tier, v.Date, g.Shift, s.Time.String(), "", s.Occupancy.Stats, s.Selectable); err != nil {
						return err
					}
					for _, z := range s.Occupancy.Zones {
						if err := slotRow(sheet, z.Tier(), v.Date, g.Shift, s.Time.String(), z.Name, z.Stats, !z.Full()); err != nil {
							return err
						}
					}
				}
			}
		}
	}

	return wb.Save(out)
}

func slotRow(sheet *Sheet, tier availability.Tier, date, shift, at, zone string, st availability.Stats, selectable bool) error {
	values := []any{date, shift, at, zone, st.Total, st.Occupied, st.Available, st.Percent, string(tier), selectable}
	if fill, ok := tierFills[tier]; ok {
		return sheet.FilledRow(fill, values...)
	}
	return sheet.Row(values...)
}
