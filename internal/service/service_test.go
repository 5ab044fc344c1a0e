package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"waitline/internal/availability"
	"waitline/internal/events"
	"waitline/internal/model"
	"waitline/internal/scheduling"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetBusiness(ctx context.Context, id int64) (*model.Business, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Business), args.Error(1)
}

func (m *mockStore) GetEmployee(ctx context.Context, id int64) (*model.Employee, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Employee), args.Error(1)
}

func (m *mockStore) GetService(ctx context.Context, id int64) (*model.Service, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Service), args.Error(1)
}

func (m *mockStore) UpdateEmployeeStatus(ctx context.Context, id int64, s model.EmployeeStatus) error {
	return m.Called(ctx, id, s).Error(0)
}

func (m *mockStore) LoadCalendar(ctx context.Context, id int64) (*availability.Calendar, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*availability.Calendar), args.Error(1)
}

func (m *mockStore) CreateQueueEntry(ctx context.Context, e *model.QueueEntry) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockStore) GetQueueEntry(ctx context.Context, id int64) (*model.QueueEntry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueEntry), args.Error(1)
}

func (m *mockStore) TransitionQueueEntry(ctx context.Context, id int64, from, to model.QueueStatus, emp *int64, at time.Time) error {
	return m.Called(ctx, id, from, to, emp, at).Error(0)
}

type createAppointmentFunc func(context.Context, *model.Appointment, time.Time, time.Time, func([]model.Appointment) error) error

func (m *mockStore) CreateAppointment(ctx context.Context, a *model.Appointment, from, to time.Time, check func([]model.Appointment) error) error {
	args := m.Called(ctx, a, from, to, check)
	if fn, ok := args.Get(0).(createAppointmentFunc); ok {
		return fn(ctx, a, from, to, check)
	}
	return args.Error(0)
}

func (m *mockStore) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Appointment), args.Error(1)
}

func (m *mockStore) ListEmployeeAppointments(ctx context.Context, id int64, from, to time.Time) ([]model.Appointment, error) {
	args := m.Called(ctx, id, from, to)
	return args.Get(0).([]model.Appointment), args.Error(1)
}

func (m *mockStore) TransitionAppointment(ctx context.Context, id int64, from, to model.AppointmentStatus, at time.Time) error {
	return m.Called(ctx, id, from, to, at).Error(0)
}

func (m *mockStore) CreateOverride(ctx context.Context, o *model.ScheduleOverride) error {
	return m.Called(ctx, o).Error(0)
}

type reviewerFunc func(ctx context.Context, businessID int64) (int, error)

func (f reviewerFunc) SweepBusiness(ctx context.Context, businessID int64) (int, error) {
	return f(ctx, businessID)
}

// 2026-03-10 is a Tuesday.
var testNow = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

func testCalendar() *availability.Calendar {
	cal := &availability.Calendar{Business: model.Business{ID: 1, Name: "Fade Masters", TimeZone: "UTC"}}
	for day := 0; day < 7; day++ {
		cal.Hours = append(cal.Hours, model.OperatingHours{BusinessID: 1, DayOfWeek: day, OpenTime: "09:00", CloseTime: "18:00"})
		cal.Schedules = append(cal.Schedules, model.WeeklySchedule{
			EmployeeID: 100, DayOfWeek: day, StartTime: "09:00", EndTime: "18:00",
			LunchStart: "13:00", LunchEnd: "14:00", IsWorking: true,
		})
	}
	return cal
}

func newTestService(store *mockStore) (*Service, *[]events.Event) {
	logger := zerolog.New(io.Discard)
	bus := events.NewEventBus()
	var published []events.Event
	bus.Subscribe(events.All, func(e events.Event) error {
		published = append(published, e)
		return nil
	})
	svc := New(store, bus, &logger).WithClock(func() time.Time { return testNow })
	return svc, &published
}

func TestJoinQueue(t *testing.T) {
	store := new(mockStore)
	svc, published := newTestService(store)
	ctx := context.Background()

	serviceID := int64(10)
	store.On("GetBusiness", ctx, int64(1)).Return(&model.Business{ID: 1}, nil)
	store.On("GetService", ctx, serviceID).Return(&model.Service{ID: 10, BusinessID: 1, DurationMinutes: 30, IsActive: true}, nil)
	store.On("CreateQueueEntry", ctx, mock.AnythingOfType("*model.QueueEntry")).
		Run(func(args mock.Arguments) { args.Get(1).(*model.QueueEntry).ID = 7 }).
		Return(nil)

	entry, err := svc.JoinQueue(ctx, JoinRequest{BusinessID: 1, CustomerName: "  John Doe ", ServiceID: &serviceID})
	require.NoError(t, err)
	assert.Equal(t, int64(7), entry.ID)
	assert.Equal(t, "John Doe", entry.CustomerName)
	assert.Equal(t, model.QueueWaiting, entry.Status)
	assert.Equal(t, 1, entry.PartySize)
	assert.Equal(t, testNow, entry.JoinedAt)

	require.Len(t, *published, 1)
	assert.Equal(t, events.QueueJoined, (*published)[0].Type)
	assert.Equal(t, int64(1), (*published)[0].BusinessID)
	store.AssertExpectations(t)
}

func TestJoinQueue_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("missing name", func(t *testing.T) {
		store := new(mockStore)
		svc, published := newTestService(store)
		_, err := svc.JoinQueue(ctx, JoinRequest{BusinessID: 1})
		var verr *scheduling.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Empty(t, *published)
	})

	t.Run("employee of another business", func(t *testing.T) {
		store := new(mockStore)
		svc, published := newTestService(store)
		emp := int64(200)
		store.On("GetBusiness", ctx, int64(1)).Return(&model.Business{ID: 1}, nil)
		store.On("GetEmployee", ctx, emp).Return(&model.Employee{ID: emp, BusinessID: 2}, nil)

		_, err := svc.JoinQueue(ctx, JoinRequest{BusinessID: 1, CustomerName: "A", EmployeeID: &emp})
		assert.ErrorIs(t, err, ErrWrongBusiness)
		assert.Empty(t, *published)
		store.AssertNotCalled(t, "CreateQueueEntry", mock.Anything, mock.Anything)
	})

	t.Run("inactive service", func(t *testing.T) {
		store := new(mockStore)
		svc, _ := newTestService(store)
		serviceID := int64(10)
		store.On("GetBusiness", ctx, int64(1)).Return(&model.Business{ID: 1}, nil)
		store.On("GetService", ctx, serviceID).Return(&model.Service{ID: 10, BusinessID: 1}, nil)

		_, err := svc.JoinQueue(ctx, JoinRequest{BusinessID: 1, CustomerName: "A", ServiceID: &serviceID})
		assert.ErrorIs(t, err, ErrInactiveService)
	})

	t.Run("negative custom duration", func(t *testing.T) {
		store := new(mockStore)
		svc, _ := newTestService(store)
		bad := -5
		store.On("GetBusiness", ctx, int64(1)).Return(&model.Business{ID: 1}, nil)

		_, err := svc.JoinQueue(ctx, JoinRequest{BusinessID: 1, CustomerName: "A", CustomDurationMinutes: &bad})
		var verr *scheduling.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "custom_duration_minutes", verr.Field)
	})
}

func TestUpdateQueueStatus_Transitions(t *testing.T) {
	tests := []struct {
		from    model.QueueStatus
		to      model.QueueStatus
		allowed bool
	}{
		{model.QueueWaiting, model.QueueInService, true},
		{model.QueueWaiting, model.QueueCancelled, true},
		{model.QueueWaiting, model.QueueNoShow, true},
		{model.QueueWaiting, model.QueueCompleted, false},
		{model.QueueInService, model.QueueCompleted, true},
		{model.QueueInService, model.QueueWaiting, false},
		{model.QueueCompleted, model.QueueWaiting, false},
		{model.QueueCancelled, model.QueueInService, false},
		{model.QueueNoShow, model.QueueCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			ctx := context.Background()
			store := new(mockStore)
			svc, published := newTestService(store)

			store.On("GetQueueEntry", ctx, int64(5)).Return(&model.QueueEntry{ID: 5, BusinessID: 1, Status: tt.from}, nil)
			store.On("TransitionQueueEntry", ctx, int64(5), tt.from, tt.to, (*int64)(nil), testNow).Return(nil)

			entry, err := svc.UpdateQueueStatus(ctx, 5, tt.to, nil)
			if !tt.allowed {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Empty(t, *published)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, entry.Status)
			require.Len(t, *published, 1)
			assert.Equal(t, string(tt.to), (*published)[0].Status)
		})
	}
}

func TestUpdateQueueStatus_StartServiceWithEmployee(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc, _ := newTestService(store)
	emp := int64(100)

	store.On("GetQueueEntry", ctx, int64(5)).Return(&model.QueueEntry{ID: 5, BusinessID: 1, Status: model.QueueWaiting}, nil)
	store.On("GetEmployee", ctx, emp).Return(&model.Employee{ID: emp, BusinessID: 1}, nil)
	store.On("TransitionQueueEntry", ctx, int64(5), model.QueueWaiting, model.QueueInService, &emp, testNow).Return(nil)

	entry, err := svc.UpdateQueueStatus(ctx, 5, model.QueueInService, &emp)
	require.NoError(t, err)
	require.NotNil(t, entry.ServiceStartedAt)
	assert.Equal(t, emp, entry.PreferredEmployee())

	_, err = svc.UpdateQueueStatus(ctx, 5, model.QueueCancelled, &emp)
	var verr *scheduling.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLeaveQueue_StoreConflict(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc, published := newTestService(store)
	conflict := errors.New("status changed concurrently")

	store.On("GetQueueEntry", ctx, int64(5)).Return(&model.QueueEntry{ID: 5, BusinessID: 1, Status: model.QueueWaiting}, nil)
	store.On("TransitionQueueEntry", ctx, int64(5), model.QueueWaiting, model.QueueCancelled, (*int64)(nil), testNow).Return(conflict)

	_, err := svc.LeaveQueue(ctx, 5)
	assert.ErrorIs(t, err, conflict)
	assert.Empty(t, *published)
}

func expectAppointmentLookups(ctx context.Context, store *mockStore) {
	store.On("LoadCalendar", ctx, int64(1)).Return(testCalendar(), nil)
	store.On("GetEmployee", ctx, int64(100)).Return(&model.Employee{ID: 100, BusinessID: 1}, nil)
	store.On("GetService", ctx, int64(10)).Return(&model.Service{ID: 10, BusinessID: 1, DurationMinutes: 30, Price: 25, IsActive: true}, nil)
}

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()
	serviceID := int64(10)
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	req := AppointmentRequest{BusinessID: 1, EmployeeID: 100, ServiceID: &serviceID, CustomerName: "Jane Roe", StartTime: start}

	tests := []struct {
		name     string
		start    time.Time
		existing []model.Appointment
		reason   string
	}{
		{name: "fits", start: start},
		{name: "overlaps", start: start, existing: []model.Appointment{
			{ID: 3, BusinessID: 1, EmployeeID: 100, StartTime: start.Add(15 * time.Minute), DurationMinutes: 30, Status: model.AppointmentScheduled},
		}, reason: scheduling.ReasonOverlapsAppointment},
		{name: "back to back", start: start, existing: []model.Appointment{
			{ID: 3, BusinessID: 1, EmployeeID: 100, StartTime: start.Add(30 * time.Minute), DurationMinutes: 30, Status: model.AppointmentScheduled},
		}},
		{name: "lunch", start: time.Date(2026, 3, 10, 12, 45, 0, 0, time.UTC), reason: scheduling.ReasonOutsideAvailability},
		{name: "past", start: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC), reason: scheduling.ReasonInPast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mockStore)
			svc, published := newTestService(store)
			expectAppointmentLookups(ctx, store)

			r := req
			r.StartTime = tt.start
			store.On("CreateAppointment", ctx, mock.AnythingOfType("*model.Appointment"), tt.start, tt.start.Add(30*time.Minute), mock.Anything).
				Return(createAppointmentFunc(func(_ context.Context, _ *model.Appointment, _, _ time.Time, check func([]model.Appointment) error) error {
					return check(tt.existing)
				}))

			a, err := svc.CreateAppointment(ctx, r)
			if tt.reason != "" {
				assert.ErrorIs(t, err, ErrSlotUnavailable)
				var slotErr *SlotError
				require.ErrorAs(t, err, &slotErr)
				assert.Equal(t, tt.reason, slotErr.Check.Reason)
				assert.Empty(t, *published)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 30, a.DurationMinutes)
			assert.Equal(t, 25.0, a.Price)
			assert.Equal(t, model.AppointmentScheduled, a.Status)
			require.Len(t, *published, 1)
			assert.Equal(t, events.AppointmentCreated, (*published)[0].Type)
		})
	}
}

func TestValidateAppointment_DoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc, published := newTestService(store)
	expectAppointmentLookups(ctx, store)

	serviceID := int64(10)
	start := time.Date(2026, 3, 10, 17, 45, 0, 0, time.UTC)
	store.On("ListEmployeeAppointments", ctx, int64(100), start, start.Add(30*time.Minute)).Return([]model.Appointment{}, nil)

	check, err := svc.ValidateAppointment(ctx, AppointmentRequest{BusinessID: 1, EmployeeID: 100, ServiceID: &serviceID, StartTime: start})
	require.NoError(t, err)
	assert.False(t, check.Fits)
	assert.Equal(t, scheduling.ReasonOutsideAvailability, check.Reason)
	assert.Empty(t, *published)
	store.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc, published := newTestService(store)

	store.On("GetAppointment", ctx, int64(3)).Return(&model.Appointment{ID: 3, BusinessID: 1, Status: model.AppointmentScheduled, NeedsReview: true}, nil)
	store.On("TransitionAppointment", ctx, int64(3), model.AppointmentScheduled, model.AppointmentInProgress, testNow).Return(nil)

	a, err := svc.UpdateAppointmentStatus(ctx, 3, model.AppointmentInProgress)
	require.NoError(t, err)
	assert.False(t, a.NeedsReview)
	require.NotNil(t, a.ActualStart)
	require.Len(t, *published, 1)

	_, err = svc.UpdateAppointmentStatus(ctx, 3, model.AppointmentScheduled)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.UpdateAppointmentStatus(ctx, 3, "done")
	var verr *scheduling.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateOverride_ReviewsAppointments(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc, published := newTestService(store)

	var swept int64
	svc.WithReviewer(reviewerFunc(func(_ context.Context, businessID int64) (int, error) {
		swept = businessID
		return 2, nil
	}))

	emp := int64(100)
	o := &model.ScheduleOverride{
		BusinessID: 1,
		EmployeeID: &emp,
		StartDate:  time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		Type:       model.OverrideSickLeave,
	}
	store.On("GetBusiness", ctx, int64(1)).Return(&model.Business{ID: 1}, nil)
	store.On("GetEmployee", ctx, emp).Return(&model.Employee{ID: emp, BusinessID: 1}, nil)
	store.On("CreateOverride", ctx, o).Run(func(args mock.Arguments) { args.Get(1).(*model.ScheduleOverride).ID = 9 }).Return(nil)

	flagged, err := svc.CreateOverride(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, 2, flagged)
	assert.Equal(t, int64(1), swept)
	require.Len(t, *published, 1)
	assert.Equal(t, events.OverrideCreated, (*published)[0].Type)
	assert.Equal(t, int64(9), (*published)[0].EntityID)
}

func TestCreateOverride_Invalid(t *testing.T) {
	store := new(mockStore)
	svc, _ := newTestService(store)

	_, err := svc.CreateOverride(context.Background(), &model.ScheduleOverride{BusinessID: 1, Type: "vacation", StartDate: testNow})
	var verr *scheduling.ValidationError
	assert.ErrorAs(t, err, &verr)
	store.AssertNotCalled(t, "CreateOverride", mock.Anything, mock.Anything)
}

func TestUpdateEmployeeStatus(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	svc, published := newTestService(store)

	store.On("GetEmployee", ctx, int64(100)).Return(&model.Employee{ID: 100, BusinessID: 1, Status: model.EmployeeAvailable}, nil)
	store.On("UpdateEmployeeStatus", ctx, int64(100), model.EmployeeOnBreak).Return(nil)

	require.NoError(t, svc.UpdateEmployeeStatus(ctx, 100, model.EmployeeOnBreak))
	require.Len(t, *published, 1)
	assert.Equal(t, events.EmployeeStatusChanged, (*published)[0].Type)

	require.NoError(t, svc.UpdateEmployeeStatus(ctx, 100, model.EmployeeAvailable), "unchanged status is a no-op")
	assert.Len(t, *published, 1)
}
