package snapshot

import (
	"strings"
	"time"
	"unicode/utf8"
)

// QueueDisplay is the full state pushed to subscribers of one business. It always replaces the
// client's previous copy.
type QueueDisplay struct {
	BusinessID   int64             `json:"business_id"`
	BusinessName string            `json:"business_name"`
	TimeZone     string            `json:"time_zone"`
	Waiting      []WaitingItem     `json:"waiting"`
	InService    []ServingItem     `json:"in_service"`
	Upcoming     []AppointmentItem `json:"upcoming_appointments"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

type WaitingItem struct {
	ID                   int64      `json:"id"`
	Position             int        `json:"position"`
	EstimatedStart       *time.Time `json:"estimated_start"`
	EstimatedWaitMinutes *int       `json:"estimated_wait_minutes"`
	CustomerLabel        string     `json:"customer_label"`
	ServiceLabel         string     `json:"service_label"`
	EmployeeID           int64      `json:"employee_id,omitempty"`
	EmployeeName         string     `json:"employee_name,omitempty"`
	PartySize            int        `json:"party_size"`
}

type ServingItem struct {
	ID            int64      `json:"id"`
	CustomerLabel string     `json:"customer_label"`
	ServiceLabel  string     `json:"service_label"`
	EmployeeID    int64      `json:"employee_id,omitempty"`
	EmployeeName  string     `json:"employee_name,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EstimatedEnd  *time.Time `json:"estimated_end,omitempty"`
}

type AppointmentItem struct {
	ID            int64     `json:"id"`
	CustomerLabel string    `json:"customer_label"`
	ServiceLabel  string    `json:"service_label"`
	EmployeeID    int64     `json:"employee_id"`
	EmployeeName  string    `json:"employee_name,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	NeedsReview   bool      `json:"needs_review,omitempty"`
}

// CustomerLabel shortens a full name to "First L." for public display.
func CustomerLabel(name string) string {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "Guest"
	case 1:
		return parts[0]
	}
	last := parts[len(parts)-1]
	r, _ := utf8.DecodeRuneInString(last)
	return parts[0] + " " + strings.ToUpper(string(r)) + "."
}
