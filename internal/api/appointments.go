package api

import (
	"net/http"

	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/service"
)

func (s *Server) decodeAppointment(w http.ResponseWriter, r *http.Request) (service.AppointmentRequest, bool) {
	var req service.AppointmentRequest

	businessID, ok := pathID(r, "businessID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return req, false
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body; start_time must be RFC 3339")
		return req, false
	}
	req.BusinessID = businessID
	return req, true
}

// POST /api/businesses/{businessID}/appointments
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointment_create")

	req, ok := s.decodeAppointment(w, r)
	if !ok {
		return
	}

	appt, err := s.mutations.CreateAppointment(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// handleValidateAppointment checks a slot without booking it. A slot that does not fit is
// still a 200; the body says why.
// POST /api/businesses/{businessID}/appointments/validate
func (s *Server) handleValidateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointment_validate")

	req, ok := s.decodeAppointment(w, r)
	if !ok {
		return
	}

	check, err := s.mutations.ValidateAppointment(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

type appointmentStatusRequest struct {
	Status model.AppointmentStatus `json:"status"`
}

// POST /api/appointments/{appointmentID}/status
func (s *Server) handleAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("appointment_status")

	id, ok := pathID(r, "appointmentID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req appointmentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	appt, err := s.mutations.UpdateAppointmentStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
