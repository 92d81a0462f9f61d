// Package api provides the HTTP surface: flow ingestion, live SSE and
// WebSocket streams, the audit listing, and the ops endpoints.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/audit"
	"github.com/intellicloud/netsentry/pkg/geo"
	"github.com/intellicloud/netsentry/pkg/hub"
	"github.com/intellicloud/netsentry/pkg/metrics"
	"github.com/intellicloud/netsentry/pkg/models"
	"github.com/intellicloud/netsentry/pkg/rules"
	"github.com/intellicloud/netsentry/pkg/store"
)

// Config holds the server's listen address and collaborator endpoints
// reported by preflight.
type Config struct {
	Addr     string
	RedisURL string
}

// Server wires the pipeline components to their HTTP routes.
type Server struct {
	cfg      Config
	log      *logrus.Logger
	traffic  *hub.Hub[models.FlowEvent]
	trail    *audit.Trail
	geo      *geo.Readers
	engine   *rules.Engine
	archiver *store.Archiver // optional
	redis    *redis.Client   // optional
	metrics  *metrics.Metrics

	router     *mux.Router
	httpServer *http.Server

	// done is closed on Shutdown so the long-lived stream handlers
	// return instead of holding the drain open for its full timeout.
	done     chan struct{}
	doneOnce sync.Once
}

// New creates the server. archiver and redisClient may be nil.
func New(cfg Config, traffic *hub.Hub[models.FlowEvent], trail *audit.Trail,
	geoReaders *geo.Readers, engine *rules.Engine, archiver *store.Archiver,
	redisClient *redis.Client, m *metrics.Metrics, log *logrus.Logger) *Server {

	s := &Server{
		cfg:      cfg,
		log:      log,
		traffic:  traffic,
		trail:    trail,
		geo:      geoReaders,
		engine:   engine,
		archiver: archiver,
		redis:    redisClient,
		metrics:  m,
		router:   mux.NewRouter(),
		done:     make(chan struct{}),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        cfg.Addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the stream endpoints hold their
		// connections open indefinitely.
		IdleTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/traffic/ingest", s.handleIngest).Methods("POST")
	s.router.HandleFunc("/stream/traffic", s.handleStreamTraffic).Methods("GET")
	s.router.HandleFunc("/stream/audit", s.handleStreamAudit).Methods("GET")
	s.router.HandleFunc("/ws/traffic", s.handleWSTraffic).Methods("GET")
	s.router.HandleFunc("/ws/audit", s.handleWSAudit).Methods("GET")
	s.router.HandleFunc("/audit-log", s.handleAuditLog).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/preflight", s.handlePreflight).Methods("GET")
	s.router.HandleFunc("/ops/reload-geo", s.handleReloadGeo).Methods("POST")
	s.router.HandleFunc("/ops/reload-rules", s.handleReloadRules).Methods("POST")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Router returns the route handler, for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server. It blocks until the server is
// closed.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.cfg.Addr).Info("Server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Stream handlers watch the
// done channel, so open SSE and WebSocket connections terminate instead
// of keeping Shutdown waiting until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string) {
	s.writeJSON(w, status, map[string]string{"error": code})
}
