package server

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// handleDriftWS streams drift reports to a WebSocket client as evaluations
// happen. The current report is pushed immediately on connect; after that
// the client receives whatever the evaluation loop produces. Slow clients
// miss reports rather than stalling the pipeline.
func (s *Server) handleDriftWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	s.mx.WSClients().Add(1)
	defer s.mx.WSClients().Add(-1)

	reports, cancel := s.pipe.Subscribe()
	defer cancel()

	// Drain the read side so we notice when the client goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.pipe.EvaluateDrift()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case report, ok := <-reports:
			if !ok {
				return
			}
			if err := conn.WriteJSON(report); err != nil {
				return
			}
		}
	}
}
