package server

import (
	"fmt"
	"net/http"
)

// flushSink adapts an http.ResponseWriter + Flusher pair to the hub's Sink.
// Write errors surface once the client is gone, and the hub drops the sink.
type flushSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *flushSink) Write(p []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sse write panic: %v", r)
		}
	}()
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleEventStream serves GET /api/events/stream (SSE). The subscription
// lives until the client disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.hub.Subscribe(&flushSink{w: w, flusher: flusher})
	defer sub.Unsubscribe()

	s.log.Info().Int("subscribers", s.hub.Count()).Msg("Client connected to event stream")

	<-r.Context().Done()
	s.log.Info().Msg("Client disconnected from event stream")
}
