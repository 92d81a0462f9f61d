package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/intellicloud/netsentry/pkg/audit"
	"github.com/intellicloud/netsentry/pkg/models"
	"github.com/intellicloud/netsentry/pkg/pipeline"
)

// maxIngestBody bounds one ingest request.
const maxIngestBody = 4 << 20

// handleIngest accepts a batch of raw flow items, runs each through the
// pipeline, and broadcasts the result. Collaborator failures never fail
// the request; only a malformed outer payload does.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		s.metrics.IngestRejected.Inc()
		s.writeError(w, http.StatusBadRequest, "bad_body")
		return
	}

	items, err := pipeline.DecodeBatch(body)
	if err != nil {
		s.metrics.IngestRejected.Inc()
		code := "bad_json"
		if errors.Is(err, pipeline.ErrItemsNotList) {
			code = "items_must_be_list"
		}
		s.writeError(w, http.StatusBadRequest, code)
		return
	}

	now := time.Now()
	count := 0
	for _, item := range items {
		ev := pipeline.Normalize(item, now)
		s.processEvent(&ev)
		count++
	}

	s.log.WithField("events", count).Info("Traffic ingest")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "received": count})
}

// processEvent runs enrichment, auditing, archival, broadcast, and rule
// evaluation for one normalized event.
func (s *Server) processEvent(ev *models.FlowEvent) {
	if s.geo != nil {
		ev.SrcGeo, ev.DstGeo = s.geo.EnrichPair(ev.Src, ev.Dst)
	}

	if ev.Severity == models.SeverityHigh {
		s.metrics.EventsHigh.Inc()
		s.trail.LogEvent("system", "alert", audit.AlertTarget(ev), audit.AlertDetails(ev))
		s.metrics.AuditEntries.Inc()
		if s.archiver != nil {
			s.archiver.Write(*ev)
		}
	}

	s.traffic.Publish(*ev)
	s.metrics.EventsIngested.Inc()

	if s.engine != nil {
		s.metrics.RuleEvaluations.Inc()
		if created := s.engine.Evaluate(ev, nil); len(created) > 0 {
			s.metrics.AlertsCreated.Add(float64(len(created)))
		}
	}
}

// handleAuditLog lists up to the 200 most recent audit entries, newest
// first.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	entries := s.trail.Recent(200)
	if entries == nil {
		entries = []models.AuditEvent{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":   true,
		"time": float64(time.Now().UnixNano()) / 1e9,
		"host": host,
	})
}

// handlePreflight reports collaborator reachability for deploy checks.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	payload := map[string]interface{}{
		"ok":      true,
		"service": map[string]interface{}{"hostname": host},
	}

	redisStatus := map[string]interface{}{"ok": s.redis != nil, "url": s.cfg.RedisURL}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 250*time.Millisecond)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus["ok"] = false
			redisStatus["error"] = truncate(err.Error(), 200)
		}
	}
	payload["redis"] = redisStatus

	if s.geo != nil {
		payload["geo"] = s.geo.Status()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReloadGeo(w http.ResponseWriter, r *http.Request) {
	if s.geo == nil {
		s.writeError(w, http.StatusServiceUnavailable, "geo_not_configured")
		return
	}
	s.geo.Reload()
	s.trail.LogEvent("admin", "reload_geo", "geoip", "")
	s.metrics.AuditEntries.Inc()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "geo": s.geo.Status()})
}

func (s *Server) handleReloadRules(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Reload()
	if err != nil {
		s.log.WithError(err).Error("Rule reload failed")
		s.writeError(w, http.StatusInternalServerError, "reload_failed")
		return
	}
	s.trail.LogEvent("admin", "reload_rules", "rules", "")
	s.metrics.AuditEntries.Inc()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "rules": n})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
