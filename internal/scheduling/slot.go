package scheduling

import (
	"time"

	"waitline/internal/availability"
	"waitline/internal/model"
)

const (
	ReasonInPast              = "in_past"
	ReasonOutsideAvailability = "outside_availability"
	ReasonOverlapsAppointment = "overlaps_appointment"
)

// SlotCheck is the outcome of an appointment slot validation.
type SlotCheck struct {
	Fits       bool   `json:"fits"`
	Reason     string `json:"reason,omitempty"`
	ConflictID int64  `json:"conflict_id,omitempty"`
}

// SlotRequest describes a candidate appointment. ExcludeID skips an existing appointment, so an
// appointment can be re-validated against its own slot.
type SlotRequest struct {
	EmployeeID int64
	Start      time.Time
	Duration   time.Duration
	ExcludeID  int64
}

// ValidateAppointmentSlot checks that [Start, Start+Duration) lies inside one availability
// interval of the employee and does not overlap any non-cancelled appointment.
func ValidateAppointmentSlot(cal *availability.Calendar, appointments []model.Appointment, req SlotRequest, now time.Time) (SlotCheck, error) {
	if req.EmployeeID <= 0 {
		return SlotCheck{}, invalid("employee_id", "is required")
	}
	if req.Start.IsZero() {
		return SlotCheck{}, invalid("start_time", "is required")
	}
	if req.Duration <= 0 {
		return SlotCheck{}, invalid("duration", "must be positive, got %s", req.Duration)
	}

	if !now.IsZero() && req.Start.Before(now) {
		return SlotCheck{Reason: ReasonInPast}, nil
	}

	end := req.Start.Add(req.Duration)
	if !fitsAvailability(cal, req.EmployeeID, req.Start, end) {
		return SlotCheck{Reason: ReasonOutsideAvailability}, nil
	}

	for i := range appointments {
		a := &appointments[i]
		if a.ID == req.ExcludeID && req.ExcludeID != 0 {
			continue
		}
		if a.EmployeeID != req.EmployeeID || !a.Blocking() {
			continue
		}
		if a.OverlapsWith(req.Start, end) {
			return SlotCheck{Reason: ReasonOverlapsAppointment, ConflictID: a.ID}, nil
		}
	}

	return SlotCheck{Fits: true}, nil
}

func fitsAvailability(cal *availability.Calendar, employeeID int64, start, end time.Time) bool {
	for _, iv := range availability.Resolve(cal, employeeID, start) {
		if iv.Contains(start, end) {
			return true
		}
	}
	return false
}

// FindStaleAppointments returns scheduled appointments that no longer fit their employee's
// availability, typically after an override was added.
func FindStaleAppointments(cal *availability.Calendar, appointments []model.Appointment) []model.Appointment {
	var stale []model.Appointment
	for _, a := range appointments {
		if a.Status != model.AppointmentScheduled || a.BusinessID != cal.Business.ID {
			continue
		}
		if a.Duration() <= 0 || !fitsAvailability(cal, a.EmployeeID, a.StartTime, a.EndTime()) {
			stale = append(stale, a)
		}
	}
	return stale
}
