// Package audit keeps a bounded, append-only log of system and
// administrative actions and broadcasts new entries to live operators.
package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intellicloud/netsentry/pkg/hub"
	"github.com/intellicloud/netsentry/pkg/models"
)

const (
	// bufferSize is the number of entries the trail retains.
	bufferSize = 1000

	// replayLimit caps how many recent entries a new stream
	// subscriber is caught up with.
	replayLimit = 50
)

// Trail is the audit log. Entries never mutate after creation; the trail
// holds them newest first, matching the listing endpoint's most-recent-
// first contract.
type Trail struct {
	mu      sync.Mutex
	entries []models.AuditEvent
	hub     *hub.Hub[models.AuditEvent]
}

// NewTrail creates an empty audit trail with its own broadcast hub.
func NewTrail() *Trail {
	return &Trail{
		hub: hub.New[models.AuditEvent](bufferSize, replayLimit),
	}
}

// Hub returns the trail's broadcast hub for stream subscriptions.
func (t *Trail) Hub() *hub.Hub[models.AuditEvent] {
	return t.hub
}

// LogEvent records one audit entry and broadcasts it. Call from anywhere
// in the pipeline; it never fails.
func (t *Trail) LogEvent(actor, action, target, details string) models.AuditEvent {
	ev := models.AuditEvent{
		ID:      "a-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Actor:   actor,
		Action:  action,
		Target:  target,
		At:      float64(time.Now().UnixNano()) / 1e9,
		Details: details,
	}

	t.mu.Lock()
	t.entries = append([]models.AuditEvent{ev}, t.entries...)
	if len(t.entries) > bufferSize {
		t.entries = t.entries[:bufferSize]
	}
	t.mu.Unlock()

	t.hub.Publish(ev)
	return ev
}

// Recent returns up to limit entries, newest first.
func (t *Trail) Recent(limit int) []models.AuditEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.entries) {
		limit = len(t.entries)
	}
	out := make([]models.AuditEvent, limit)
	copy(out, t.entries[:limit])
	return out
}

// AlertTarget formats the endpoint pair used as the target of a High
// classification audit entry.
func AlertTarget(ev *models.FlowEvent) string {
	return fmt.Sprintf("%s:%s -> %s:%s",
		ev.Src, formatPort(ev.SrcPort), ev.Dst, formatPort(ev.DstPort))
}

// AlertDetails describes why a flow was classified High.
func AlertDetails(ev *models.FlowEvent) string {
	return fmt.Sprintf("%s/%s classified High",
		strings.ToUpper(ev.Proto), formatPort(ev.DstPort))
}

func formatPort(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *p)
}
