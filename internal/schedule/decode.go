package schedule

import (
	"encoding/json"

	"reservo/internal/lenient"
)

// UnmarshalJSON decodes the schedule part of a config document member by
// member. A member with the wrong type is left at its zero value and recorded
// in Issues, so Resolve falls back to the default for that field only.
func (r *Raw) UnmarshalJSON(data []byte) error {
	f, ok := lenient.Parse(data, "")
	if !ok {
		*r = Raw{Issues: []string{"schedule config is not a JSON object, ignored"}}
		return nil
	}

	out := Raw{
		ScheduleType: f.String("schedule_type"),
		OpenTime:     f.String("open_time"),
		CloseTime:    f.String("close_time"),
		SlotDuration: f.Int("slot_duration"),
		Timezone:     f.String("timezone"),
		WorkDays:     dayList(f, "work_days"),
	}
	f.Objects("shifts", func(item *lenient.Fields) {
		out.Shifts = append(out.Shifts, RawShift{
			Name:       item.String("name"),
			StartTime:  item.String("start_time"),
			EndTime:    item.String("end_time"),
			Enabled:    item.Bool("enabled"),
			ActiveDays: dayList(item, "active_days"),
		})
	})
	out.Issues = f.Issues

	*r = out
	return nil
}

func dayList(f *lenient.Fields, key string) DayList {
	raw, ok := f.Raw(key)
	if !ok {
		return nil
	}
	var l DayList
	_ = json.Unmarshal(raw, &l)
	if l == nil {
		f.Issue(key, "is not a list, ignored")
	}
	return l
}
