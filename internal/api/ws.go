package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"

	"waitline/internal/metrics"
	"waitline/internal/realtime"
)

// CloseBusinessNotFound is sent when a viewer subscribes to an unknown business.
const CloseBusinessNotFound = 4004

// handleQueueSocket registers a live viewer for a business queue. The viewer gets the
// current snapshot right away and a fresh one after every change.
// GET /ws/queue/{businessID}
func (s *Server) handleQueueSocket(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ws_queue")

	businessID, ok := pathID(r, "businessID")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid business id")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := realtime.NewWSConn(ws)
	log := s.logger.With().Int64("business_id", businessID).Str("conn_id", conn.ID()).Logger()

	exists, err := s.calendars.BusinessExists(r.Context(), businessID)
	if err != nil {
		log.Error().Err(err).Msg("business lookup failed")
		_ = conn.CloseWithCode(websocket.CloseInternalServerErr, "lookup failed")
		return
	}
	if !exists {
		_ = conn.CloseWithCode(CloseBusinessNotFound, "business not found")
		return
	}

	if err := s.registry.Register(businessID, conn); err != nil {
		if errors.Is(err, realtime.ErrRegistryClosed) {
			_ = conn.CloseWithCode(websocket.CloseGoingAway, "server shutting down")
			return
		}
		_ = conn.CloseWithCode(websocket.CloseInternalServerErr, "register failed")
		return
	}
	defer func() {
		s.registry.Unregister(businessID, conn)
		_ = conn.Close()
	}()
	log.Debug().Msg("viewer connected")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err = s.dispatcher.SendInitial(ctx, businessID, conn)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("initial snapshot failed")
		return
	}

	if err := conn.ReadLoop(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Debug().Err(err).Msg("viewer disconnected")
	}
}
