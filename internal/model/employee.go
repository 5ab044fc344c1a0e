package model

import "time"

type EmployeeStatus string

const (
	EmployeeAvailable EmployeeStatus = "available"
	EmployeeBusy      EmployeeStatus = "busy"
	EmployeeOnBreak   EmployeeStatus = "on_break"
	EmployeeOff       EmployeeStatus = "off"
)

func (s EmployeeStatus) Valid() bool {
	switch s {
	case EmployeeAvailable, EmployeeBusy, EmployeeOnBreak, EmployeeOff:
		return true
	}
	return false
}

type Employee struct {
	ID         int64          `json:"id"`
	BusinessID int64          `json:"business_id"`
	Name       string         `json:"name"`
	Status     EmployeeStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Schedulable reports whether the employee can take queue work at all.
func (e *Employee) Schedulable() bool {
	return e.Status != EmployeeOff
}

type WeeklySchedule struct {
	ID         int64  `json:"id"`
	EmployeeID int64  `json:"employee_id"`
	DayOfWeek  int    `json:"day_of_week"` // 0-6 (Sunday-Saturday)
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	LunchStart string `json:"lunch_start,omitempty"`
	LunchEnd   string `json:"lunch_end,omitempty"`
	IsWorking  bool   `json:"is_working"`
}

func (s *WeeklySchedule) HasLunch() bool {
	return s.LunchStart != "" && s.LunchEnd != ""
}
