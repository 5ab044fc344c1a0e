package scheduling

import (
	"time"

	"waitline/internal/availability"
	"waitline/internal/model"
)

// State is one consistent read of everything a queue estimate depends on.
type State struct {
	Calendar     availability.Calendar
	Employees    []model.Employee
	Services     []model.Service
	Entries      []model.QueueEntry
	Appointments []model.Appointment
}

func (s *State) Business() *model.Business {
	return &s.Calendar.Business
}

func (s *State) service(id *int64) *model.Service {
	if id == nil {
		return nil
	}
	for i := range s.Services {
		if s.Services[i].ID == *id {
			return &s.Services[i]
		}
	}
	return nil
}

func (s *State) employee(id int64) *model.Employee {
	for i := range s.Employees {
		if s.Employees[i].ID == id {
			return &s.Employees[i]
		}
	}
	return nil
}

// EntryDuration resolves how long an entry occupies an employee.
func (s *State) EntryDuration(e *model.QueueEntry) time.Duration {
	return e.Duration(s.service(e.ServiceID), s.Business().DefaultDuration())
}

// ServiceName returns the name of the service the entry references, or "".
func (s *State) ServiceName(id *int64) string {
	if svc := s.service(id); svc != nil {
		return svc.Name
	}
	return ""
}

// EmployeeName returns the display name of an employee, or "".
func (s *State) EmployeeName(id int64) string {
	if e := s.employee(id); e != nil {
		return e.Name
	}
	return ""
}
