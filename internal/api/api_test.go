package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waitline/internal/config"
	"waitline/internal/db"
	"waitline/internal/events"
	"waitline/internal/model"
	"waitline/internal/realtime"
	"waitline/internal/review"
	"waitline/internal/scheduling"
	"waitline/internal/service"
	"waitline/internal/snapshot"
)

const testAPIKey = "valid-key"

type testServer struct {
	*httptest.Server
	db       *db.DB
	registry *realtime.Registry
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.SyncBusinessesFromConfig(context.Background(), &config.BusinessesConfig{
		Businesses: []config.BusinessConfig{
			{
				ID: 1, Name: "Fade Masters", TimeZone: "UTC", Open24Hours: true,
				Services:  []config.ServiceConfig{{ID: 10, Name: "Haircut", DurationMinutes: 30, Price: 25}},
				Employees: []config.EmployeeConfig{{ID: 100, Name: "Alex"}},
			},
			{
				ID: 2, Name: "Other Shop", TimeZone: "UTC", Open24Hours: true,
				Employees: []config.EmployeeConfig{{ID: 200, Name: "Kim"}},
			},
		},
	})
	require.NoError(t, err)
	return store
}

func setupTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := newTestDB(t)

	builder := snapshot.NewBuilder(store, &logger).WithEstimateWriter(store)
	registry := realtime.NewRegistry()
	dispatcher := realtime.NewDispatcher(registry, builder, time.Second, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	notifier := realtime.NewNotifier(dispatcher, 16, 1, &logger)
	notifier.Start(ctx)

	bus := events.NewEventBus()
	bus.Subscribe(events.All, func(e events.Event) error {
		notifier.Notify(e.BusinessID)
		return nil
	})

	sweeper := review.NewSweeper(store, time.Hour, nil, &logger)
	svc := service.New(store, bus, &logger).WithReviewer(sweeper)
	server := NewServer(svc, store, builder, registry, dispatcher, opts, &logger)

	ts := &testServer{Server: httptest.NewServer(server.Handler()), db: store, registry: registry}
	t.Cleanup(func() {
		registry.Close()
		ts.Close()
		notifier.Stop()
		cancel()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, apiKey string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestJoinQueueAndGetDisplay(t *testing.T) {
	srv := setupTestServer(t, Options{APIKey: testAPIKey})

	resp := srv.do(t, http.MethodPost, "/api/businesses/1/queue", map[string]any{
		"customer_name": "John Doe",
		"service_id":    10,
	}, testAPIKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decode[model.QueueEntry](t, resp)
	assert.Equal(t, model.QueueWaiting, entry.Status)

	resp = srv.do(t, http.MethodGet, "/api/businesses/1/queue", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	display := decode[snapshot.QueueDisplay](t, resp)
	assert.Equal(t, "Fade Masters", display.BusinessName)
	require.Len(t, display.Waiting, 1)
	assert.Equal(t, 1, display.Waiting[0].Position)
	assert.Equal(t, "John D.", display.Waiting[0].CustomerLabel)
	assert.Equal(t, "Haircut", display.Waiting[0].ServiceLabel)
	assert.NotNil(t, display.Waiting[0].EstimatedStart)
	assert.Empty(t, display.InService)
}

func TestWriteEndpointsRequireAPIKey(t *testing.T) {
	srv := setupTestServer(t, Options{APIKey: testAPIKey})

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"join", http.MethodPost, "/api/businesses/1/queue"},
		{"status", http.MethodPost, "/api/queue/1/status"},
		{"leave", http.MethodDelete, "/api/queue/1"},
		{"appointment", http.MethodPost, "/api/businesses/1/appointments"},
		{"override", http.MethodPost, "/api/businesses/1/overrides"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, tt.method, tt.path, map[string]any{}, "wrong")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	resp := srv.do(t, http.MethodGet, "/api/businesses/1/queue", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads are public")
}

func TestJoinQueue_Validation(t *testing.T) {
	srv := setupTestServer(t, Options{JoinRatePerMinute: 600, JoinBurst: 50})

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantError  string
	}{
		{"missing name", "/api/businesses/1/queue", map[string]any{}, http.StatusBadRequest, "invalid customer_name: is required"},
		{"unknown field", "/api/businesses/1/queue", map[string]any{"customer_name": "A", "vip": true}, http.StatusBadRequest, "invalid JSON body"},
		{"bad business id", "/api/businesses/abc/queue", map[string]any{"customer_name": "A"}, http.StatusBadRequest, "invalid business id"},
		{"unknown business", "/api/businesses/42/queue", map[string]any{"customer_name": "A"}, http.StatusNotFound, ""},
		{"foreign employee", "/api/businesses/1/queue", map[string]any{"customer_name": "A", "employee_id": 200}, http.StatusUnprocessableEntity, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := srv.do(t, http.MethodPost, tt.path, tt.body, "")
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			errResp := decode[errorResponse](t, resp)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, errResp.Error)
			} else {
				assert.NotEmpty(t, errResp.Error)
			}
		})
	}
}

func TestJoinQueue_RateLimited(t *testing.T) {
	srv := setupTestServer(t, Options{JoinRatePerMinute: 1, JoinBurst: 2})

	for i := 0; i < 2; i++ {
		resp := srv.do(t, http.MethodPost, "/api/businesses/1/queue", map[string]any{"customer_name": fmt.Sprintf("C%d", i)}, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := srv.do(t, http.MethodPost, "/api/businesses/1/queue", map[string]any{"customer_name": "C3"}, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestQueueStatusLifecycle(t *testing.T) {
	srv := setupTestServer(t, Options{})

	resp := srv.do(t, http.MethodPost, "/api/businesses/1/queue", map[string]any{"customer_name": "Jane"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entry := decode[model.QueueEntry](t, resp)
	path := fmt.Sprintf("/api/queue/%d/status", entry.ID)

	resp = srv.do(t, http.MethodPost, path, map[string]any{"status": "completed"}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, path, map[string]any{"status": "in_service", "employee_id": 100}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	display := decode[snapshot.QueueDisplay](t, srv.do(t, http.MethodGet, "/api/businesses/1/queue", nil, ""))
	require.Len(t, display.InService, 1)
	assert.Equal(t, "Alex", display.InService[0].EmployeeName)
	assert.Empty(t, display.Waiting)

	resp = srv.do(t, http.MethodPost, path, map[string]any{"status": "completed"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = srv.do(t, http.MethodDelete, fmt.Sprintf("/api/queue/%d", entry.ID), nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "completed entries cannot leave")

	resp = srv.do(t, http.MethodPost, "/api/queue/9999/status", map[string]any{"status": "cancelled"}, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAppointments(t *testing.T) {
	srv := setupTestServer(t, Options{})
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)

	body := map[string]any{"employee_id": 100, "service_id": 10, "customer_name": "Jane Roe", "start_time": start.Format(time.RFC3339)}

	resp := srv.do(t, http.MethodPost, "/api/businesses/1/appointments/validate", body, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decode[scheduling.SlotCheck](t, resp)
	assert.True(t, check.Fits)

	resp = srv.do(t, http.MethodPost, "/api/businesses/1/appointments", body, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appt := decode[model.Appointment](t, resp)
	assert.Equal(t, 30, appt.DurationMinutes)

	overlapping := map[string]any{"employee_id": 100, "customer_name": "Late", "start_time": start.Add(10 * time.Minute).Format(time.RFC3339)}
	resp = srv.do(t, http.MethodPost, "/api/businesses/1/appointments", overlapping, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[errorResponse](t, resp)
	assert.Equal(t, scheduling.ReasonOverlapsAppointment, errResp.Reason)
	assert.Equal(t, appt.ID, errResp.ConflictID)

	resp = srv.do(t, http.MethodPost, "/api/businesses/1/appointments", map[string]any{"employee_id": 100, "customer_name": "X", "start_time": "tomorrow"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, fmt.Sprintf("/api/appointments/%d/status", appt.ID), map[string]any{"status": "cancelled"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.AppointmentCancelled, decode[model.Appointment](t, resp).Status)
}

func TestOverrideFlagsAppointments(t *testing.T) {
	srv := setupTestServer(t, Options{})
	day := time.Now().UTC().AddDate(0, 0, 3)
	start := time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC)

	resp := srv.do(t, http.MethodPost, "/api/businesses/1/appointments", map[string]any{
		"employee_id": 100, "customer_name": "Jane", "start_time": start.Format(time.RFC3339),
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = srv.do(t, http.MethodPost, "/api/businesses/1/overrides", map[string]any{
		"employee_id": 100, "start_date": model.FormatDate(start), "type": "sick_leave", "reason": "flu",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[OverrideResponse](t, resp)
	assert.Equal(t, 1, out.FlaggedAppointments)
	assert.NotZero(t, out.Override.ID)

	resp = srv.do(t, http.MethodGet, fmt.Sprintf("/api/businesses/1/availability?date=%s&employee_id=100", model.FormatDate(start)), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	avail := decode[AvailabilityResponse](t, resp)
	assert.Empty(t, avail.Intervals)

	resp = srv.do(t, http.MethodGet, fmt.Sprintf("/api/businesses/1/availability?date=%s", model.FormatDate(start)), nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	avail = decode[AvailabilityResponse](t, resp)
	require.Len(t, avail.Intervals, 1, "business itself stays open")
	assert.Equal(t, 24*time.Hour, avail.Intervals[0].End.Sub(avail.Intervals[0].Start))

	resp = srv.do(t, http.MethodPost, "/api/businesses/1/overrides", map[string]any{"start_date": "2026-13-01", "type": "holiday"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = srv.do(t, http.MethodPost, "/api/businesses/1/overrides", map[string]any{"start_date": "2026-05-01", "type": "vacation"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func wsURL(ts *testServer, businessID int64) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + fmt.Sprintf("/ws/queue/%d", businessID)
}

func readDisplay(t *testing.T, conn *websocket.Conn) snapshot.QueueDisplay {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var d snapshot.QueueDisplay
	require.NoError(t, conn.ReadJSON(&d))
	return d
}

func TestQueueSocket_InitialSnapshotAndPush(t *testing.T) {
	srv := setupTestServer(t, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, 1), nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readDisplay(t, conn)
	assert.Equal(t, int64(1), initial.BusinessID)
	assert.Empty(t, initial.Waiting)
	assert.NotNil(t, initial.Waiting, "empty lists are sent as []")

	require.Eventually(t, func() bool { return srv.registry.Count(1) == 1 }, time.Second, 10*time.Millisecond)

	resp := srv.do(t, http.MethodPost, "/api/businesses/1/queue", map[string]any{"customer_name": "Walk In"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	pushed := readDisplay(t, conn)
	require.Len(t, pushed.Waiting, 1)
	assert.Equal(t, "Walk I.", pushed.Waiting[0].CustomerLabel)
}

func TestQueueSocket_OtherBusinessNotPushed(t *testing.T) {
	srv := setupTestServer(t, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, 2), nil)
	require.NoError(t, err)
	defer conn.Close()
	readDisplay(t, conn)

	resp := srv.do(t, http.MethodPost, "/api/businesses/1/queue", map[string]any{"customer_name": "Walk In"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err, "no snapshot for business 1 reaches business 2")
}

func TestQueueSocket_UnknownBusiness(t *testing.T) {
	srv := setupTestServer(t, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, 404), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, CloseBusinessNotFound, closeErr.Code)
	assert.Equal(t, 0, srv.registry.Total())
}

func TestQueueSocket_DisconnectUnregisters(t *testing.T) {
	srv := setupTestServer(t, Options{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, 1), nil)
	require.NoError(t, err)
	readDisplay(t, conn)
	require.Eventually(t, func() bool { return srv.registry.Count(1) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return srv.registry.Count(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIPLimiter(t *testing.T) {
	l := newIPLimiter(60, 1)
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"), "buckets are per address")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(r))
	r.RemoteAddr = "192.0.2.1"
	assert.Equal(t, "192.0.2.1", clientIP(r))
}
