package model

import "time"

type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentInProgress AppointmentStatus = "in_progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentInProgress, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

type Appointment struct {
	ID                    int64             `json:"id"`
	BusinessID            int64             `json:"business_id"`
	EmployeeID            int64             `json:"employee_id"`
	ServiceID             *int64            `json:"service_id,omitempty"`
	CustomerName          string            `json:"customer_name"`
	Phone                 string            `json:"phone,omitempty"`
	PartySize             int               `json:"party_size"`
	StartTime             time.Time         `json:"start_time"`
	DurationMinutes       int               `json:"duration_minutes"`
	Price                 float64           `json:"price"`
	CustomDurationMinutes *int              `json:"custom_duration_minutes,omitempty"`
	CustomPrice           *float64          `json:"custom_price,omitempty"`
	Status                AppointmentStatus `json:"status"`
	Notes                 string            `json:"notes,omitempty"`
	NeedsReview           bool              `json:"needs_review"`
	ActualStart           *time.Time        `json:"actual_start,omitempty"`
	ActualEnd             *time.Time        `json:"actual_end,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// Duration returns the custom duration when set, otherwise the computed total.
func (a *Appointment) Duration() time.Duration {
	if a.CustomDurationMinutes != nil && *a.CustomDurationMinutes > 0 {
		return time.Duration(*a.CustomDurationMinutes) * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// TotalPrice returns the custom price when set, otherwise the computed total.
func (a *Appointment) TotalPrice() float64 {
	if a.CustomPrice != nil {
		return *a.CustomPrice
	}
	return a.Price
}

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(a.Duration())
}

// Blocking reports whether the appointment still occupies its slot.
func (a *Appointment) Blocking() bool {
	return a.Status != AppointmentCancelled
}

// OverlapsWith uses half-open intervals, so back-to-back appointments do not overlap.
func (a *Appointment) OverlapsWith(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime())
}
