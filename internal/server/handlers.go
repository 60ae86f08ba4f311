package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cespare/xxhash/v2"

	"github.com/zeusync/doublezero/internal/core/observability/log"
	"github.com/zeusync/doublezero/internal/core/protocol"
)

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	id := protocol.GenerateClientID()
	token, err := s.signer.Issue(id)
	if err != nil {
		s.logger.Error("Failed to sign client cookie", log.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, s.signer.Cookie(token))
	writeJSON(w, http.StatusOK, protocol.ClientResponse{ClientID: id})

	s.logger.Debug("Client registered",
		log.String("client_id", string(id)),
		log.String("remote_addr", r.RemoteAddr))
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	clientID, err := s.signer.ClientFromRequest(r)
	if err != nil {
		s.metrics.PushesTotal.WithLabelValues("unauthorized").Inc()
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.limiter.Allow(clientID) {
		s.metrics.PushesTotal.WithLabelValues("limited").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var batch protocol.Batch
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodySize)
	if err = json.NewDecoder(body).Decode(&batch); err != nil {
		s.metrics.PushesTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	p, err := s.authority.Push(clientID, batch)
	if err != nil {
		s.metrics.PushesTotal.WithLabelValues("rejected").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if p.IsEmpty() {
		s.metrics.PushesTotal.WithLabelValues("unchanged").Inc()
	} else {
		s.metrics.PushesTotal.WithLabelValues("accepted").Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePull streams one patch per line until the client goes away or
// the session is closed.
func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	session, err := s.authority.Subscribe()
	if err != nil {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.authority.Unsubscribe(session)

	gauge := s.metrics.ActiveStreams.WithLabelValues("ndjson")
	gauge.Inc()
	defer gauge.Dec()

	w.Header().Set("Content-Type", protocol.ContentTypeNDJSON)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger := s.logger.With(log.String("session_id", string(session.ID)))
	logger.Debug("Pull stream opened", log.String("remote_addr", r.RemoteAddr))

	frames := protocol.NewFrameWriter(w)
	for {
		select {
		case frame := <-session.Frames():
			if err = frames.WriteFrame(frame); err != nil {
				logger.Debug("Pull stream write failed", log.Error(err))
				return
			}
		case <-session.Done():
			logger.Debug("Pull stream closed", log.Error(session.Err()))
			return
		case <-r.Context().Done():
			logger.Debug("Pull stream client went away")
			return
		}
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, _ := s.authority.State()
	body, err := json.Marshal(state)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", protocol.ContentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
