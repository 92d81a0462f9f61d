package store

import (
	"testing"

	"github.com/intellicloud/netsentry/pkg/models"
)

func TestBlockIPIdempotent(t *testing.T) {
	s := NewMemStore()
	clientID := int64(7)

	if err := s.BlockIP(&clientID, "203.0.113.5", "rule-1"); err != nil {
		t.Fatalf("BlockIP returned error: %v", err)
	}
	if err := s.BlockIP(&clientID, "203.0.113.5", "rule-2"); err != nil {
		t.Fatalf("BlockIP returned error: %v", err)
	}
	if got := s.BlockedCount(); got != 1 {
		t.Errorf("Expected exactly 1 blocklist entry after duplicate insert, got %d", got)
	}

	// A different client for the same ip is a new entry.
	other := int64(8)
	if err := s.BlockIP(&other, "203.0.113.5", "rule-1"); err != nil {
		t.Fatalf("BlockIP returned error: %v", err)
	}
	if got := s.BlockedCount(); got != 2 {
		t.Errorf("Expected 2 entries for distinct clients, got %d", got)
	}
}

func TestIsIPBlocked(t *testing.T) {
	s := NewMemStore()
	if blocked, _ := s.IsIPBlocked("203.0.113.5"); blocked {
		t.Error("Expected unlisted ip to be unblocked")
	}
	if err := s.BlockIP(nil, "203.0.113.5", "manual"); err != nil {
		t.Fatalf("BlockIP returned error: %v", err)
	}
	if blocked, _ := s.IsIPBlocked("203.0.113.5"); !blocked {
		t.Error("Expected ip blocked after insert")
	}
}

func TestCreateAlertAssignsIDs(t *testing.T) {
	s := NewMemStore()
	first, err := s.CreateAlert(nil, "r1", models.SeverityHigh, "title", models.FlowEvent{})
	if err != nil {
		t.Fatalf("CreateAlert returned error: %v", err)
	}
	second, err := s.CreateAlert(nil, "r1", models.SeverityHigh, "title", models.FlowEvent{})
	if err != nil {
		t.Fatalf("CreateAlert returned error: %v", err)
	}
	if first == second {
		t.Errorf("Expected distinct alert ids, both were %d", first)
	}
	if len(s.Alerts()) != 2 {
		t.Errorf("Expected 2 stored alerts, got %d", len(s.Alerts()))
	}
}
