package scheduling

import (
	"sort"
	"time"

	"waitline/internal/availability"
	"waitline/internal/model"
)

// Estimate is the computed position and start time of a waiting entry.
type Estimate struct {
	Entry      model.QueueEntry
	Position   int
	EmployeeID int64
	Start      time.Time
	Duration   time.Duration
	// Known is false when no employee can take the entry today.
	Known bool
}

// WaitMinutes is the rounded-up wait from now until the estimated start.
func (e *Estimate) WaitMinutes(now time.Time) int {
	if !e.Known || !e.Start.After(now) {
		return 0
	}
	wait := e.Start.Sub(now)
	return int((wait + time.Minute - 1) / time.Minute)
}

// lane tracks free time and the next free instant of one employee.
type lane struct {
	employeeID int64
	free       []availability.Interval
	cursor     time.Time
}

// place finds the earliest start not before max(cursor, floor) where d fits entirely inside a
// free interval.
func (l *lane) place(d time.Duration, floor time.Time) (time.Time, bool) {
	from := l.cursor
	if floor.After(from) {
		from = floor
	}
	for _, iv := range l.free {
		start := iv.Start
		if from.After(start) {
			start = from
		}
		if !start.Add(d).After(iv.End) {
			return start, true
		}
	}
	return time.Time{}, false
}

func (l *lane) occupy(start time.Time, d time.Duration) {
	l.cursor = start.Add(d)
}

// EstimateQueue orders waiting entries FIFO and assigns each an estimated start against the
// employees' remaining availability for today.
func EstimateQueue(state *State, now time.Time) ([]Estimate, error) {
	for i := range state.Entries {
		e := &state.Entries[i]
		if e.CustomDurationMinutes != nil && *e.CustomDurationMinutes <= 0 {
			return nil, invalid("custom_duration_minutes", "entry %d has non-positive duration %d", e.ID, *e.CustomDurationMinutes)
		}
	}

	lanes := buildLanes(state, now)
	byID := make(map[int64]*lane, len(lanes))
	for _, l := range lanes {
		byID[l.employeeID] = l
	}

	waiting := make([]model.QueueEntry, 0, len(state.Entries))
	var serving []model.QueueEntry
	for _, e := range state.Entries {
		if e.BusinessID != state.Calendar.Business.ID {
			continue
		}
		switch e.Status {
		case model.QueueWaiting:
			waiting = append(waiting, e)
		case model.QueueInService:
			serving = append(serving, e)
		}
	}
	sortFIFO(waiting)
	sortFIFO(serving)

	// Unassigned in-service entries still hold an employee until they finish.
	for i := range serving {
		e := &serving[i]
		if e.PreferredEmployee() != 0 {
			continue
		}
		d := remaining(e, state.EntryDuration(e), now)
		if l, start, ok := earliest(lanes, d, now); ok {
			l.occupy(start, d)
		}
	}

	out := make([]Estimate, 0, len(waiting))
	var floor time.Time
	for i := range waiting {
		e := waiting[i]
		est := Estimate{Entry: e, Position: i + 1, Duration: state.EntryDuration(&e)}

		if pref := e.PreferredEmployee(); pref != 0 {
			if l := byID[pref]; l != nil {
				if start, ok := l.place(est.Duration, time.Time{}); ok {
					l.occupy(start, est.Duration)
					est.EmployeeID, est.Start, est.Known = pref, start, true
				}
			} else {
				est.EmployeeID = pref
			}
			out = append(out, est)
			continue
		}

		if l, start, ok := earliest(lanes, est.Duration, floor); ok {
			l.occupy(start, est.Duration)
			floor = start
			est.EmployeeID, est.Start, est.Known = l.employeeID, start, true
		}
		out = append(out, est)
	}
	return out, nil
}

// earliest picks the lane with the earliest feasible start, lowest employee id on ties.
func earliest(lanes []*lane, d time.Duration, floor time.Time) (*lane, time.Time, bool) {
	var (
		best  *lane
		bestT time.Time
	)
	for _, l := range lanes {
		start, ok := l.place(d, floor)
		if !ok {
			continue
		}
		if best == nil || start.Before(bestT) {
			best, bestT = l, start
		}
	}
	return best, bestT, best != nil
}

// buildLanes computes each schedulable employee's free time from now to the end of today,
// excluding time held by in-service entries and blocking appointments.
func buildLanes(state *State, now time.Time) []*lane {
	cal := &state.Calendar
	dayEnd := model.StartOfDay(now, cal.Business.Location()).AddDate(0, 0, 1)

	employees := make([]model.Employee, 0, len(state.Employees))
	for _, emp := range state.Employees {
		if emp.BusinessID == cal.Business.ID && emp.Schedulable() {
			employees = append(employees, emp)
		}
	}
	sort.Slice(employees, func(i, j int) bool { return employees[i].ID < employees[j].ID })

	lanes := make([]*lane, 0, len(employees))
	for _, emp := range employees {
		free := availability.Clamp(availability.Resolve(cal, emp.ID, now), now, dayEnd)

		for i := range state.Entries {
			e := &state.Entries[i]
			if e.Status != model.QueueInService || e.PreferredEmployee() != emp.ID {
				continue
			}
			d := remaining(e, state.EntryDuration(e), now)
			free = availability.Subtract(free, availability.Interval{Start: now, End: now.Add(d)})
		}
		for i := range state.Appointments {
			a := &state.Appointments[i]
			if a.EmployeeID != emp.ID || !occupies(a) {
				continue
			}
			free = availability.Subtract(free, availability.Interval{Start: a.StartTime, End: a.EndTime()})
		}

		lanes = append(lanes, &lane{employeeID: emp.ID, free: free, cursor: now})
	}
	return lanes
}

// occupies reports whether an appointment blocks queue work.
func occupies(a *model.Appointment) bool {
	return a.Status == model.AppointmentScheduled || a.Status == model.AppointmentInProgress
}

// remaining is the time left for an entry already in service.
func remaining(e *model.QueueEntry, d time.Duration, now time.Time) time.Duration {
	if e.ServiceStartedAt == nil {
		return d
	}
	end := e.ServiceStartedAt.Add(d)
	if !end.After(now) {
		return 0
	}
	return end.Sub(now)
}

func sortFIFO(entries []model.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

// ValidateJoin rejects a new queue entry whose join time lies before now beyond the allowed skew.
func ValidateJoin(e *model.QueueEntry, now time.Time, skew time.Duration) error {
	if e.JoinedAt.IsZero() {
		return invalid("joined_at", "is required")
	}
	if e.JoinedAt.Before(now.Add(-skew)) {
		return invalid("joined_at", "%s is in the past", e.JoinedAt.Format(time.RFC3339))
	}
	if e.CustomDurationMinutes != nil && *e.CustomDurationMinutes <= 0 {
		return invalid("custom_duration_minutes", "must be positive")
	}
	if e.PartySize < 0 {
		return invalid("party_size", "must not be negative")
	}
	return nil
}
