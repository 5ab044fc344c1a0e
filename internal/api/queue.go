package api

import (
	"net/http"

	"waitline/internal/metrics"
	"waitline/internal/model"
	"waitline/internal/service"
)

// handleGetQueue returns the same payload live viewers receive.
// GET /api/businesses/{businessID}/queue
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue_get")

	businessID, ok := pathID(r, "businessID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	display, err := s.snapshots.Build(r.Context(), businessID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

// POST /api/businesses/{businessID}/queue
func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue_join")

	businessID, ok := pathID(r, "businessID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	var req service.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.BusinessID = businessID

	entry, err := s.mutations.JoinQueue(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

type queueStatusRequest struct {
	Status     model.QueueStatus `json:"status"`
	EmployeeID *int64            `json:"employee_id,omitempty"`
}

// POST /api/queue/{entryID}/status
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue_status")

	entryID, ok := pathID(r, "entryID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	var req queueStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	entry, err := s.mutations.UpdateQueueStatus(r.Context(), entryID, req.Status, req.EmployeeID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DELETE /api/queue/{entryID}
func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("queue_leave")

	entryID, ok := pathID(r, "entryID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	entry, err := s.mutations.LeaveQueue(r.Context(), entryID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type employeeStatusRequest struct {
	Status model.EmployeeStatus `json:"status"`
}

// POST /api/employees/{employeeID}/status
func (s *Server) handleEmployeeStatus(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("employee_status")

	employeeID, ok := pathID(r, "employeeID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid employee id")
		return
	}

	var req employeeStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.mutations.UpdateEmployeeStatus(r.Context(), employeeID, req.Status); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": employeeID, "status": req.Status})
}
