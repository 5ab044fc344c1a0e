package api

import (
	"net/http"
	"strconv"
	"time"

	"waitline/internal/availability"
	"waitline/internal/metrics"
	"waitline/internal/model"
)

type AvailabilityResponse struct {
	BusinessID int64                   `json:"business_id"`
	EmployeeID int64                   `json:"employee_id,omitempty"`
	Date       string                  `json:"date"`
	TimeZone   string                  `json:"time_zone"`
	Intervals  []availability.Interval `json:"intervals"`
}

// handleAvailability returns the effective open intervals for a date. Without employee_id
// the business-level availability is returned.
// GET /api/businesses/{businessID}/availability?date=YYYY-MM-DD&employee_id=N
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")

	businessID, ok := pathID(r, "businessID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	var employeeID int64
	if raw := r.URL.Query().Get("employee_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid employee_id")
			return
		}
		employeeID = id
	}

	cal, err := s.calendars.LoadCalendar(r.Context(), businessID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	loc := cal.Business.Location()

	day := time.Now().In(loc)
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err = model.ParseDate(raw, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
	}

	intervals := availability.Resolve(cal, employeeID, day)
	if intervals == nil {
		intervals = []availability.Interval{}
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		BusinessID: businessID,
		EmployeeID: employeeID,
		Date:       model.FormatDate(day),
		TimeZone:   loc.String(),
		Intervals:  intervals,
	})
}

type OverrideRequest struct {
	EmployeeID *int64 `json:"employee_id,omitempty"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date,omitempty"`
	Type       string `json:"type"`
	Reason     string `json:"reason,omitempty"`
	IsClosed   bool   `json:"is_closed,omitempty"`
	StartTime  string `json:"start_time,omitempty"`
	EndTime    string `json:"end_time,omitempty"`
	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`
	Repeat     string `json:"repeat,omitempty"`
}

type OverrideResponse struct {
	Override            *model.ScheduleOverride `json:"override"`
	FlaggedAppointments int                     `json:"flagged_appointments"`
}

// POST /api/businesses/{businessID}/overrides
func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("override_create")

	businessID, ok := pathID(r, "businessID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	var req OverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StartDate == "" {
		writeError(w, http.StatusBadRequest, "start_date is required")
		return
	}

	start, err := model.ParseDate(req.StartDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date format; expected YYYY-MM-DD")
		return
	}
	end := start
	if req.EndDate != "" {
		if end, err = model.ParseDate(req.EndDate, time.UTC); err != nil {
			writeError(w, http.StatusBadRequest, "invalid end_date format; expected YYYY-MM-DD")
			return
		}
	}

	o := &model.ScheduleOverride{
		BusinessID: businessID,
		EmployeeID: req.EmployeeID,
		StartDate:  start,
		EndDate:    end,
		Type:       model.OverrideType(req.Type),
		Reason:     req.Reason,
		IsClosed:   req.IsClosed,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		LunchStart: req.LunchStart,
		LunchEnd:   req.LunchEnd,
		Repeat:     model.RepeatFrequency(req.Repeat),
	}

	flagged, err := s.mutations.CreateOverride(r.Context(), o)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, OverrideResponse{Override: o, FlaggedAppointments: flagged})
}
