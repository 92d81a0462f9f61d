package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/hub"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Dashboards are served from other origins; auth happens upstream.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleWSTraffic(w http.ResponseWriter, r *http.Request) {
	serveWS(w, r, s.traffic, s.metrics.Subscribers.WithLabelValues("ws_traffic"), s.done, s.log)
}

func (s *Server) handleWSAudit(w http.ResponseWriter, r *http.Request) {
	serveWS(w, r, s.trail.Hub(), s.metrics.Subscribers.WithLabelValues("ws_audit"), s.done, s.log)
}

// serveWS delivers the same replay-then-live sequence as the SSE streams
// over a WebSocket, with server-side pings keeping the connection alive.
func serveWS[T any](w http.ResponseWriter, r *http.Request, h *hub.Hub[T], gauge prometheus.Gauge, done <-chan struct{}, log *logrus.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)
	gauge.Inc()
	defer gauge.Dec()

	// Drain client frames to observe the close; the stream is one-way.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-clientGone:
			return

		case ev := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
