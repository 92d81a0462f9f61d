package store

import (
	"fmt"
	"sync"

	"github.com/intellicloud/netsentry/pkg/models"
)

// MemStore is an in-process AlertStore and Blocklist used when no
// database is configured, and in tests.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	alerts  []models.Alert
	blocked map[string]string // "client/ip" -> reason
	ips     map[string]bool   // ip -> blocked for any client
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		blocked: make(map[string]string),
		ips:     make(map[string]bool),
	}
}

func blockKey(clientID *int64, ip string) string {
	if clientID == nil {
		return "/" + ip
	}
	return fmt.Sprintf("%d/%s", *clientID, ip)
}

// CreateAlert records the alert and returns a monotonically increasing id.
func (s *MemStore) CreateAlert(clientID *int64, ruleID, severity, title string, details models.FlowEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.alerts = append(s.alerts, models.Alert{
		ID:       s.nextID,
		ClientID: clientID,
		RuleID:   ruleID,
		Severity: severity,
		Title:    title,
		Details:  details,
	})
	return s.nextID, nil
}

// BlockIP records the entry; duplicates are no-ops.
func (s *MemStore) BlockIP(clientID *int64, ip, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := blockKey(clientID, ip)
	if _, exists := s.blocked[key]; !exists {
		s.blocked[key] = reason
		s.ips[ip] = true
	}
	return nil
}

// IsIPBlocked reports whether ip is blocked for any client.
func (s *MemStore) IsIPBlocked(ip string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ips[ip], nil
}

// Alerts returns a copy of the alerts created so far.
func (s *MemStore) Alerts() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// BlockedCount returns the number of distinct blocklist entries.
func (s *MemStore) BlockedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocked)
}
