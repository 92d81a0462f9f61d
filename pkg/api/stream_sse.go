package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/intellicloud/netsentry/pkg/hub"
)

const (
	// streamPollInterval bounds how long a stream waits for the next
	// event before checking whether a heartbeat is due.
	streamPollInterval = time.Second

	// heartbeatInterval is the maximum silence before a comment line
	// keeps intermediary proxies from closing the connection.
	heartbeatInterval = 3 * time.Second
)

func (s *Server) handleStreamTraffic(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, s.traffic, s.metrics.Subscribers.WithLabelValues("traffic"), s.done)
}

func (s *Server) handleStreamAudit(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, s.trail.Hub(), s.metrics.Subscribers.WithLabelValues("audit"), s.done)
}

// serveSSE replays the hub backlog and then relays live events as
// Server-Sent Events until the client goes away or the server shuts
// down. Unsubscription runs on every exit path so the registry never
// leaks.
func serveSSE[T any](w http.ResponseWriter, r *http.Request, h *hub.Hub[T], gauge prometheus.Gauge, done <-chan struct{}) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)
	gauge.Inc()
	defer gauge.Dec()

	ctx := r.Context()
	poll := time.NewTicker(streamPollInterval)
	defer poll.Stop()
	lastBeat := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return

		case ev := <-sub.Events():
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()

		case <-poll.C:
			if time.Since(lastBeat) < heartbeatInterval {
				continue
			}
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			lastBeat = time.Now()
		}
	}
}
