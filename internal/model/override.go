package model

import (
	"fmt"
	"time"
)

type OverrideType string

const (
	OverrideHoliday      OverrideType = "holiday"
	OverrideSpecialEvent OverrideType = "special_event"
	OverrideEmergency    OverrideType = "emergency"
	OverridePersonal     OverrideType = "personal"
	OverrideSickLeave    OverrideType = "sick_leave"
)

func (t OverrideType) Valid() bool {
	switch t {
	case OverrideHoliday, OverrideSpecialEvent, OverrideEmergency, OverridePersonal, OverrideSickLeave:
		return true
	}
	return false
}

// IsClosure reports whether the type means "not working" unless hours are given explicitly.
func (t OverrideType) IsClosure() bool {
	return t != OverrideSpecialEvent
}

type RepeatFrequency string

const (
	RepeatNone    RepeatFrequency = "none"
	RepeatDaily   RepeatFrequency = "daily"
	RepeatWeekly  RepeatFrequency = "weekly"
	RepeatMonthly RepeatFrequency = "monthly"
	RepeatYearly  RepeatFrequency = "yearly"
)

func (r RepeatFrequency) Valid() bool {
	switch r {
	case "", RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly, RepeatYearly:
		return true
	}
	return false
}

// ScheduleOverride replaces the regular schedule for a date range. EmployeeID == nil means
// the override applies to the whole business.
type ScheduleOverride struct {
	ID         int64           `json:"id"`
	BusinessID int64           `json:"business_id"`
	EmployeeID *int64          `json:"employee_id,omitempty"`
	StartDate  time.Time       `json:"start_date"` // inclusive
	EndDate    time.Time       `json:"end_date"`   // inclusive
	Type       OverrideType    `json:"type"`
	Reason     string          `json:"reason,omitempty"`
	IsClosed   bool            `json:"is_closed"`
	StartTime  string          `json:"start_time,omitempty"`
	EndTime    string          `json:"end_time,omitempty"`
	LunchStart string          `json:"lunch_start,omitempty"`
	LunchEnd   string          `json:"lunch_end,omitempty"`
	Repeat     RepeatFrequency `json:"repeat"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (o *ScheduleOverride) HasHours() bool {
	return o.StartTime != "" && o.EndTime != ""
}

func (o *ScheduleOverride) HasLunch() bool {
	return o.LunchStart != "" && o.LunchEnd != ""
}

func (o *ScheduleOverride) BusinessWide() bool {
	return o.EmployeeID == nil
}

// AppliesTo reports whether the override targets employeeID (0 means the business itself).
func (o *ScheduleOverride) AppliesTo(employeeID int64) bool {
	if o.EmployeeID == nil {
		return true
	}
	return employeeID != 0 && *o.EmployeeID == employeeID
}

// Covers reports whether day falls into the override range or one of its repetitions.
func (o *ScheduleOverride) Covers(day time.Time) bool {
	d := DayNumber(day)
	start := DayNumber(o.StartDate)
	end := DayNumber(o.EndDate)
	if end < start {
		end = start
	}
	if d < start {
		return false
	}
	span := end - start

	switch o.Repeat {
	case RepeatDaily:
		return true
	case RepeatWeekly:
		return (d-start)%7 <= span
	case RepeatMonthly, RepeatYearly:
		for k := 0; ; k++ {
			s := DayNumber(o.occurrence(k))
			if s > d {
				return false
			}
			if d <= s+span {
				return true
			}
		}
	default:
		return d <= end
	}
}

// occurrence returns the start of the k-th repetition. A start day missing from the target
// month is clamped to its last day, so Jan 31 repeats on Feb 28 and Feb 29 on Feb 28.
func (o *ScheduleOverride) occurrence(k int) time.Time {
	y, m, d := o.StartDate.Date()
	if o.Repeat == RepeatMonthly {
		m += time.Month(k)
	} else {
		y += k
	}
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// Validate checks field consistency before the override is stored.
func (o *ScheduleOverride) Validate() error {
	if o.BusinessID <= 0 {
		return fmt.Errorf("business_id is required")
	}
	if !o.Type.Valid() {
		return fmt.Errorf("unknown override type '%s'", o.Type)
	}
	if !o.Repeat.Valid() {
		return fmt.Errorf("unknown repeat frequency '%s'", o.Repeat)
	}
	if o.StartDate.IsZero() {
		return fmt.Errorf("start_date is required")
	}
	if !o.EndDate.IsZero() && DayNumber(o.EndDate) < DayNumber(o.StartDate) {
		return fmt.Errorf("end_date must not be before start_date")
	}
	if (o.StartTime == "") != (o.EndTime == "") {
		return fmt.Errorf("start_time and end_time must be set together")
	}
	if o.HasHours() {
		start, err := ParseClock(o.StartTime)
		if err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
		end, err := ParseClock(o.EndTime)
		if err != nil {
			return fmt.Errorf("end_time: %w", err)
		}
		if end <= start {
			return fmt.Errorf("end_time must be after start_time")
		}
	}
	if o.HasLunch() && !o.HasHours() {
		return fmt.Errorf("lunch requires explicit start_time and end_time")
	}
	return nil
}
