package review

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waitline/internal/availability"
	"waitline/internal/model"
)

type fakeStore struct {
	mu           sync.Mutex
	calendars    map[int64]*availability.Calendar
	appointments map[int64][]model.Appointment
	flagged      map[int64]bool
	calendarErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		calendars:    make(map[int64]*availability.Calendar),
		appointments: make(map[int64][]model.Appointment),
		flagged:      make(map[int64]bool),
	}
}

func (f *fakeStore) ListBusinessIDs(context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.calendars {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) LoadCalendar(_ context.Context, id int64) (*availability.Calendar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calendarErr != nil {
		return nil, f.calendarErr
	}
	return f.calendars[id], nil
}

func (f *fakeStore) ListScheduledFrom(_ context.Context, id int64, from time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appointments[id] {
		if a.Status == model.AppointmentScheduled && !a.StartTime.Before(from) {
			a.NeedsReview = f.flagged[a.ID]
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) FlagAppointments(_ context.Context, ids []int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range ids {
		if !f.flagged[id] {
			f.flagged[id] = true
			n++
		}
	}
	return n, nil
}

var now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func calendar(id int64, overrides ...model.ScheduleOverride) *availability.Calendar {
	cal := &availability.Calendar{Business: model.Business{ID: id, TimeZone: "UTC"}, Overrides: overrides}
	for day := 0; day < 7; day++ {
		cal.Hours = append(cal.Hours, model.OperatingHours{BusinessID: id, DayOfWeek: day, OpenTime: "09:00", CloseTime: "18:00"})
		cal.Schedules = append(cal.Schedules, model.WeeklySchedule{EmployeeID: 100, DayOfWeek: day, StartTime: "09:00", EndTime: "18:00", IsWorking: true})
	}
	return cal
}

func newSweeper(store Store, onFlag func(int64)) *Sweeper {
	logger := zerolog.New(io.Discard)
	return NewSweeper(store, time.Hour, onFlag, &logger).WithClock(func() time.Time { return now })
}

func TestSweepBusiness_FlagsAfterSickLeave(t *testing.T) {
	store := newFakeStore()
	emp := int64(100)
	tomorrow := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	store.calendars[1] = calendar(1, model.ScheduleOverride{
		ID: 1, BusinessID: 1, EmployeeID: &emp, StartDate: tomorrow, EndDate: tomorrow, Type: model.OverrideSickLeave,
	})
	store.appointments[1] = []model.Appointment{
		{ID: 1, BusinessID: 1, EmployeeID: 100, StartTime: now.Add(2 * time.Hour), DurationMinutes: 30, Status: model.AppointmentScheduled},
		{ID: 2, BusinessID: 1, EmployeeID: 100, StartTime: tomorrow.Add(10 * time.Hour), DurationMinutes: 30, Status: model.AppointmentScheduled},
		{ID: 3, BusinessID: 1, EmployeeID: 100, StartTime: tomorrow.Add(11 * time.Hour), DurationMinutes: 30, Status: model.AppointmentCancelled},
	}

	var notified []int64
	s := newSweeper(store, func(id int64) { notified = append(notified, id) })

	n, err := s.SweepBusiness(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, store.flagged[2])
	assert.False(t, store.flagged[1])
	assert.Equal(t, []int64{1}, notified)

	// Already flagged appointments are not counted again.
	n, err = s.SweepBusiness(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, notified, 1)
}

func TestSweepAll_ContinuesPastErrors(t *testing.T) {
	store := newFakeStore()
	store.calendars[1] = calendar(1)
	store.calendars[2] = calendar(2)
	store.calendarErr = errors.New("db down")

	s := newSweeper(store, nil)
	assert.Equal(t, 0, s.SweepAll(context.Background()))
}

func TestSweeper_StartStop(t *testing.T) {
	store := newFakeStore()
	store.calendars[1] = calendar(1)
	store.appointments[1] = []model.Appointment{
		{ID: 1, BusinessID: 1, EmployeeID: 100, StartTime: now.Add(12 * time.Hour), DurationMinutes: 30, Status: model.AppointmentScheduled},
	}

	s := newSweeper(store, nil)
	s.Start()
	s.Start()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.flagged[1]
	}, time.Second, 10*time.Millisecond, "20:00 is after closing")

	s.Stop()
	s.Stop()
}
