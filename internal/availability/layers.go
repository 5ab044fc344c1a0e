package availability

import (
	"time"

	"waitline/internal/model"
)

// OperatingHoursLayer produces the business opening intervals minus the business lunch.
type OperatingHoursLayer struct{}

func (OperatingHoursLayer) Name() string { return "operating_hours" }

func (OperatingHoursLayer) Apply(q *Query, _ []Interval) []Interval {
	if q.Calendar.Business.Open24Hours {
		return []Interval{{Start: q.Day, End: q.dayEnd()}}
	}

	weekday := int(q.Day.Weekday())
	for i := range q.Calendar.Hours {
		h := &q.Calendar.Hours[i]
		if h.DayOfWeek != weekday {
			continue
		}
		if h.IsClosed {
			return nil
		}
		ivs := span(q, h.OpenTime, h.CloseTime)
		if h.HasLunch() {
			ivs = Subtract(ivs, lunch(q, h.LunchStart, h.LunchEnd))
		}
		return ivs
	}
	return nil
}

// WeeklyScheduleLayer narrows availability to the employee's working hours for the weekday.
type WeeklyScheduleLayer struct{}

func (WeeklyScheduleLayer) Name() string { return "weekly_schedule" }

func (WeeklyScheduleLayer) Apply(q *Query, current []Interval) []Interval {
	if q.EmployeeID == 0 {
		return current
	}

	weekday := int(q.Day.Weekday())
	for i := range q.Calendar.Schedules {
		s := &q.Calendar.Schedules[i]
		if s.EmployeeID != q.EmployeeID || s.DayOfWeek != weekday {
			continue
		}
		if !s.IsWorking {
			return nil
		}
		ivs := Intersect(current, span(q, s.StartTime, s.EndTime))
		if s.HasLunch() {
			ivs = Subtract(ivs, lunch(q, s.LunchStart, s.LunchEnd))
		}
		return ivs
	}
	return nil
}

// BusinessOverrideLayer applies the winning business-wide override covering the day.
type BusinessOverrideLayer struct{}

func (BusinessOverrideLayer) Name() string { return "business_override" }

func (BusinessOverrideLayer) Apply(q *Query, current []Interval) []Interval {
	o := winningOverride(q, func(o *model.ScheduleOverride) bool { return o.BusinessWide() })
	if o == nil {
		return current
	}
	return applyOverride(q, o, current)
}

// EmployeeOverrideLayer applies the winning employee-specific override covering the day.
type EmployeeOverrideLayer struct{}

func (EmployeeOverrideLayer) Name() string { return "employee_override" }

func (EmployeeOverrideLayer) Apply(q *Query, current []Interval) []Interval {
	if q.EmployeeID == 0 {
		return current
	}
	o := winningOverride(q, func(o *model.ScheduleOverride) bool {
		return !o.BusinessWide() && o.AppliesTo(q.EmployeeID)
	})
	if o == nil {
		return current
	}
	return applyOverride(q, o, current)
}

// applyOverride replaces current wholesale. A non-closure override without hours keeps the
// regular result.
func applyOverride(q *Query, o *model.ScheduleOverride, current []Interval) []Interval {
	switch {
	case o.IsClosed:
		return nil
	case o.HasHours():
		ivs := span(q, o.StartTime, o.EndTime)
		if o.HasLunch() {
			ivs = Subtract(ivs, lunch(q, o.LunchStart, o.LunchEnd))
		}
		return ivs
	case o.Type.IsClosure():
		return nil
	default:
		return current
	}
}

// winningOverride picks the most recently created matching override covering the day.
func winningOverride(q *Query, match func(*model.ScheduleOverride) bool) *model.ScheduleOverride {
	var best *model.ScheduleOverride
	for i := range q.Calendar.Overrides {
		o := &q.Calendar.Overrides[i]
		if o.BusinessID != q.Calendar.Business.ID || !match(o) || !o.Covers(q.Day) {
			continue
		}
		if best == nil || o.ID > best.ID {
			best = o
		}
	}
	return best
}

// span converts "HH:MM" bounds into an interval on the query day. A close time at or before the
// open time is treated as running past midnight and clamped to the end of the day.
func span(q *Query, from, to string) []Interval {
	start, err := model.ParseClock(from)
	if err != nil {
		return nil
	}
	end, err := model.ParseClock(to)
	if err != nil {
		return nil
	}
	iv := Interval{Start: model.At(q.Day, start), End: model.At(q.Day, end)}
	if end <= start {
		iv.End = q.dayEnd()
	}
	if iv.Empty() {
		return nil
	}
	return []Interval{iv}
}

func lunch(q *Query, from, to string) Interval {
	ivs := span(q, from, to)
	if len(ivs) == 0 {
		return Interval{}
	}
	// A lunch break never wraps past midnight.
	if end, err := model.ParseClock(to); err == nil {
		if start, err := model.ParseClock(from); err == nil && end <= start {
			return Interval{}
		}
	}
	return ivs[0]
}

// FirstStart returns the start of the first interval, or zero time.
func FirstStart(ivs []Interval) time.Time {
	if len(ivs) == 0 {
		return time.Time{}
	}
	return ivs[0].Start
}
