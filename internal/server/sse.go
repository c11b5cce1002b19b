package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sujalmh/vector-loader-automation/internal/session"
)

const subscriberBuffer = 64

// handleEvents republishes pass notifications as a server-sent event stream.
// The first event is a snapshot of every tracked entity so a client that
// connects mid-pass starts from a consistent view. Another snapshot is sent
// whenever the subscriber missed notifications.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	updates, unsubscribe := s.session.Subscribe(subscriberBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", s.entities()); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case n, ok := <-updates:
			if !ok {
				return
			}
			if err := s.forward(w, n); err != nil {
				s.logger.Debug("event stream write failed", slog.String("error", err.Error()))
				return
			}
		}
		flusher.Flush()
	}
}

// forward writes one notification. When the subscriber fell behind, a fresh
// snapshot goes out first so the client can replace its stale view.
func (s *Server) forward(w io.Writer, n session.Notification) error {
	if n.Missed > 0 {
		if err := writeEvent(w, "snapshot", s.entities()); err != nil {
			return err
		}
	}
	return writeEvent(w, string(n.Type), n)
}

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
