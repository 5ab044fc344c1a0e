package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"waitline/internal/availability"
	"waitline/internal/model"
	"waitline/internal/realtime"
	"waitline/internal/scheduling"
	"waitline/internal/service"
	"waitline/internal/snapshot"
)

// Mutations are the write paths behind the API.
type Mutations interface {
	JoinQueue(ctx context.Context, req service.JoinRequest) (*model.QueueEntry, error)
	UpdateQueueStatus(ctx context.Context, entryID int64, to model.QueueStatus, employeeID *int64) (*model.QueueEntry, error)
	LeaveQueue(ctx context.Context, entryID int64) (*model.QueueEntry, error)
	CreateAppointment(ctx context.Context, req service.AppointmentRequest) (*model.Appointment, error)
	ValidateAppointment(ctx context.Context, req service.AppointmentRequest) (scheduling.SlotCheck, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, to model.AppointmentStatus) (*model.Appointment, error)
	CreateOverride(ctx context.Context, o *model.ScheduleOverride) (int, error)
	UpdateEmployeeStatus(ctx context.Context, employeeID int64, status model.EmployeeStatus) error
}

// Calendars gives read access to schedule data.
type Calendars interface {
	LoadCalendar(ctx context.Context, businessID int64) (*availability.Calendar, error)
	BusinessExists(ctx context.Context, businessID int64) (bool, error)
}

type Snapshots interface {
	Build(ctx context.Context, businessID int64) (*snapshot.QueueDisplay, error)
}

type Options struct {
	APIKey            string
	JoinRatePerMinute int
	JoinBurst         int
	RequestTimeout    time.Duration
}

// Server wires HTTP and WebSocket handlers to the queue engine.
type Server struct {
	mutations  Mutations
	calendars  Calendars
	snapshots  Snapshots
	registry   *realtime.Registry
	dispatcher *realtime.Dispatcher
	upgrader   websocket.Upgrader
	limiter    *ipLimiter
	apiKey     string
	timeout    time.Duration
	logger     zerolog.Logger
}

func NewServer(
	mutations Mutations,
	calendars Calendars,
	snapshots Snapshots,
	registry *realtime.Registry,
	dispatcher *realtime.Dispatcher,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	return &Server{
		mutations:  mutations,
		calendars:  calendars,
		snapshots:  snapshots,
		registry:   registry,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Queue displays are embedded on other sites; the socket is read-only.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limiter: newIPLimiter(opts.JoinRatePerMinute, opts.JoinBurst),
		apiKey:  opts.APIKey,
		timeout: opts.RequestTimeout,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	// Long-lived socket; no request timeout.
	r.Get("/ws/queue/{businessID}", s.handleQueueSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/businesses/{businessID}/queue", s.handleGetQueue)
		r.Get("/businesses/{businessID}/availability", s.handleAvailability)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIKey)

			r.With(s.rateLimit).Post("/businesses/{businessID}/queue", s.handleJoinQueue)
			r.Post("/queue/{entryID}/status", s.handleQueueStatus)
			r.Delete("/queue/{entryID}", s.handleLeaveQueue)

			r.Post("/businesses/{businessID}/appointments", s.handleCreateAppointment)
			r.Post("/businesses/{businessID}/appointments/validate", s.handleValidateAppointment)
			r.Post("/appointments/{appointmentID}/status", s.handleAppointmentStatus)

			r.Post("/businesses/{businessID}/overrides", s.handleCreateOverride)
			r.Post("/employees/{employeeID}/status", s.handleEmployeeStatus)
		})
	})

	return r
}
