package server

import (
	"net/http"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/protocol/websocket"
)

// handleWebSocket carries the same patch stream as handlePull, one text
// message per patch. Origins are checked by the CORS layer before the
// upgrade.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.NewUpgrader(s.config.Protocol, func(*http.Request) bool { return true })
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", log.Error(err))
		return
	}
	conn := websocket.NewConnection(raw, s.config.Protocol)
	defer conn.Close()

	session, err := s.authority.Subscribe()
	if err != nil {
		_ = conn.CloseWithReason("server is shutting down")
		return
	}
	defer s.authority.Unsubscribe(session)

	gauge := s.metrics.ActiveStreams.WithLabelValues("websocket")
	gauge.Inc()
	defer gauge.Dec()

	logger := s.logger.With(log.String("session_id", string(session.ID)))
	logger.Debug("WebSocket stream opened", log.String("remote_addr", conn.RemoteAddr().String()))

	// The read side only watches for the peer closing the socket.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		_ = conn.Discard()
	}()

	for {
		select {
		case frame := <-session.Frames():
			if err = conn.Send(frame); err != nil {
				logger.Debug("WebSocket write failed", log.Error(err))
				return
			}
		case <-session.Done():
			_ = conn.CloseWithReason(session.Err().Error())
			return
		case <-gone:
			logger.Debug("WebSocket peer went away")
			return
		}
	}
}
