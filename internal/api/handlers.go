package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"reservo/internal/calendar"
	"reservo/internal/mode"
	"reservo/internal/report"
	"reservo/internal/schedule"
	"reservo/internal/widget"
)

type shiftResponse struct {
	Name    string         `json:"name"`
	Start   schedule.Clock `json:"start_time"`
	End     schedule.Clock `json:"end_time"`
	Enabled bool           `json:"enabled"`
	Days    []int          `json:"active_days"`
}

type scheduleResponse struct {
	Type        schedule.Type   `json:"schedule_type"`
	WorkDays    []int           `json:"work_days"`
	OpenDays    []int           `json:"open_days"`
	OpenTime    schedule.Clock  `json:"open_time"`
	CloseTime   schedule.Clock  `json:"close_time"`
	SlotMinutes int             `json:"slot_duration"`
	Timezone    string          `json:"timezone"`
	Shifts      []shiftResponse `json:"shifts,omitempty"`
}

type configResponse struct {
	BusinessID       string                 `json:"business_id"`
	Defaulted        bool                   `json:"defaulted"`
	Schedule         scheduleResponse       `json:"schedule"`
	BookingMode      mode.Kind              `json:"booking_mode"`
	RequiredFields   []string               `json:"required_fields"`
	DefaultPartySize int                    `json:"default_party_size"`
	Services         []mode.Service         `json:"services,omitempty"`
	Professionals    []mode.Professional    `json:"professionals,omitempty"`
	Zones            []mode.Zone            `json:"zones,omitempty"`
	Classes          []mode.Service         `json:"classes,omitempty"`
	Sessions         []mode.WorkshopSession `json:"workshop_sessions,omitempty"`
}

type monthResponse struct {
	Year       int               `json:"year"`
	Month      int               `json:"month"`
	Days       []calendar.Day    `json:"days"`
	Unverified bool              `json:"unverified"`
	Errors     map[string]string `json:"errors,omitempty"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	sess := s.open(r.Context(), r)
	cfg := sess.Config()
	m := sess.Mode()

	resp := configResponse{
		BusinessID: sess.BusinessID(),
		Defaulted:  sess.Defaulted(),
		Schedule: scheduleResponse{
			Type:        cfg.Type,
			WorkDays:    cfg.WorkDays.Days(),
			OpenDays:    cfg.OpenDays().Days(),
			OpenTime:    cfg.Open,
			CloseTime:   cfg.Close,
			SlotMinutes: cfg.SlotMinutes,
			Timezone:    cfg.Loc().String(),
		},
		BookingMode:      m.Kind(),
		RequiredFields:   mode.RequiredFields(m),
		DefaultPartySize: mode.DefaultPartySize(m),
	}
	for _, sh := range cfg.Shifts {
		resp.Schedule.Shifts = append(resp.Schedule.Shifts, shiftResponse{
			Name: sh.Name, Start: sh.Start, End: sh.End, Enabled: sh.Enabled, Days: sh.Days.Days(),
		})
	}

	switch v := m.(type) {
	case mode.Appointment:
		resp.Services, resp.Professionals = v.Services, v.Professionals
	case mode.Table:
		resp.Zones = mode.ActiveZones(v.Zones)
	case mode.Class:
		resp.Classes = v.Classes
	case mode.Workshop:
		resp.Sessions = v.Sessions
	}

	writeJSON(w, http.StatusOK, resp)
}

func selectionFrom(r *http.Request) mode.Selection {
	q := r.URL.Query()
	return mode.Selection{
		ServiceID: strings.TrimSpace(q.Get("service")),
		ClassID:   strings.TrimSpace(q.Get("class")),
		Zone:      strings.TrimSpace(q.Get("zone")),
	}
}

// parseMonth reads ?month=YYYY-MM, defaulting to the current month of the business.
func (s *Server) parseMonth(r *http.Request, loc *time.Location) (int, time.Month, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	if raw == "" {
		now := s.now().In(loc)
		return now.Year(), now.Month(), nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month format; expected YYYY-MM")
	}
	return t.Year(), t.Month(), nil
}

func (s *Server) now() time.Time {
	if now := s.options().Now; now != nil {
		return now()
	}
	return time.Now()
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	sess := s.open(r.Context(), r)
	year, month, err := s.parseMonth(r, sess.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := sess.ShowMonth(r.Context(), year, month, selectionFrom(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp := monthResponse{Year: m.Year, Month: int(m.Month), Days: m.Days, Unverified: m.Unverified()}
	if len(m.Errors) > 0 {
		resp.Errors = make(map[string]string, len(m.Errors))
		for date, e := range m.Errors {
			resp.Errors[date] = e.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCalendarExport streams the month as xlsx. With ?slots=true the slot
// occupancy of every selectable date is added on a second sheet.
func (s *Server) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	sess := s.open(r.Context(), r)
	year, month, err := s.parseMonth(r, sess.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sel := selectionFrom(r)

	m, err := sess.ShowMonth(r.Context(), year, month, sel)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var views []widget.SlotView
	if r.URL.Query().Get("slots") == "true" {
		for _, d := range m.Days {
			if !d.Status.Selectable() {
				continue
			}
			view, err := sess.SelectDate(r.Context(), d.Date, sel)
			if err != nil {
				s.log.Warn().Err(err).Str("date", d.Date).Msg("slot export skipped")
				continue
			}
			views = append(views, view)
		}
	}

	var buf bytes.Buffer
	if err := report.WriteMonth(&buf, sess.BusinessID(), m, views); err != nil {
		s.log.Error().Err(err).Msg("xlsx export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	filename := fmt.Sprintf("calendar-%s-%04d-%02d.xlsx", sess.BusinessID(), year, int(month))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	sess := s.open(r.Context(), r)
	view, err := sess.SelectDate(r.Context(), date, selectionFrom(r))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleWorkshops(w http.ResponseWriter, r *http.Request) {
	sess := s.open(r.Context(), r)
	sessions, err := sess.Workshops(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleReservation(w http.ResponseWriter, r *http.Request) {
	var req mode.Request
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess := s.open(r.Context(), r)
	p, err := sess.Submit(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
