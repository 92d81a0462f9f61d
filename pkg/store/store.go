// Package store provides the alert and blocklist collaborators backed by
// PostgreSQL, an in-memory fallback, and an asynchronous batch archiver
// for flow events.
package store

import "github.com/intellicloud/netsentry/pkg/models"

// AlertStore persists alerts raised by the rule engine. The returned id
// is assigned by the store.
type AlertStore interface {
	CreateAlert(clientID *int64, ruleID, severity, title string, details models.FlowEvent) (int64, error)
}

// Blocklist is the set of denied source addresses, keyed optionally per
// client. BlockIP is idempotent: re-blocking an existing pair is a no-op.
type Blocklist interface {
	BlockIP(clientID *int64, ip, reason string) error
	IsIPBlocked(ip string) (bool, error)
}
