package availability

import (
	"time"

	"waitline/internal/model"
)

// Calendar holds the schedule rows of one business needed to resolve availability.
type Calendar struct {
	Business  model.Business
	Hours     []model.OperatingHours
	Schedules []model.WeeklySchedule
	Overrides []model.ScheduleOverride
}

// Query describes a single resolution request. Day is midnight in the business time zone.
type Query struct {
	Calendar   *Calendar
	EmployeeID int64
	Day        time.Time
}

func (q *Query) dayEnd() time.Time {
	return q.Day.AddDate(0, 0, 1)
}

// Layer refines the availability produced by the layers before it.
type Layer interface {
	Name() string
	Apply(q *Query, current []Interval) []Interval
}

// Resolver applies layers in ascending precedence: later layers win.
type Resolver struct {
	layers []Layer
}

func NewResolver(layers ...Layer) *Resolver {
	return &Resolver{layers: layers}
}

// DefaultLayers is operating hours, business-wide overrides, the employee weekly schedule and
// finally employee-specific overrides.
func DefaultLayers() []Layer {
	return []Layer{
		OperatingHoursLayer{},
		BusinessOverrideLayer{},
		WeeklyScheduleLayer{},
		EmployeeOverrideLayer{},
	}
}

var defaultResolver = NewResolver(DefaultLayers()...)

// Resolve returns the effective open intervals on day for the business (employeeID == 0)
// or for one of its employees.
func Resolve(cal *Calendar, employeeID int64, day time.Time) []Interval {
	return defaultResolver.Resolve(cal, employeeID, day)
}

func (r *Resolver) Resolve(cal *Calendar, employeeID int64, day time.Time) []Interval {
	if cal == nil {
		return nil
	}
	q := &Query{
		Calendar:   cal,
		EmployeeID: employeeID,
		Day:        model.StartOfDay(day, cal.Business.Location()),
	}

	var current []Interval
	for _, l := range r.layers {
		current = l.Apply(q, current)
	}
	return Clamp(Normalize(current), q.Day, q.dayEnd())
}

// Layers exposes the configured layers in application order.
func (r *Resolver) Layers() []string {
	names := make([]string, 0, len(r.layers))
	for _, l := range r.layers {
		names = append(names, l.Name())
	}
	return names
}
