// Package models defines data structures for normalized flow events,
// audit entries, and detection alerts.
package models

import "time"

// GeoInfo is a partial geo/ASN record for one address. Any field may be
// empty when the corresponding database has no answer.
type GeoInfo struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
	ASN     uint   `json:"asn,omitempty"`
	ASNOrg  string `json:"asn_org,omitempty"`
}

// FlowEvent is the canonical in-pipeline representation of one observed
// network flow. It is immutable once constructed; the broadcast hub shares
// it read-only with all subscribers.
type FlowEvent struct {
	ID          string   `json:"eid"`
	Timestamp   float64  `json:"ts"`
	Src         string   `json:"src"`
	Dst         string   `json:"dst"`
	Proto       string   `json:"proto"`
	SrcPort     *int     `json:"sport"`
	DstPort     *int     `json:"dport"`
	DNS         string   `json:"dns"`
	UserAgent   string   `json:"ua,omitempty"`
	Direction   string   `json:"dir"`
	Severity    string   `json:"level"`
	ThreatLevel int      `json:"threat_level,omitempty"`
	SrcGeo      *GeoInfo `json:"src_geo,omitempty"`
	DstGeo      *GeoInfo `json:"dst_geo,omitempty"`
}

// ThreatScore returns the numeric threat level used by rule thresholds.
// An explicit level from the capture agent wins over the derived one.
func (e *FlowEvent) ThreatScore() int {
	if e.ThreatLevel > 0 {
		return e.ThreatLevel
	}
	if e.Severity == SeverityHigh {
		return 3
	}
	return 1
}

// AuditEvent is one append-only entry in the audit trail.
type AuditEvent struct {
	ID      string  `json:"aid"`
	Actor   string  `json:"actor"`
	Action  string  `json:"action"`
	Target  string  `json:"target"`
	At      float64 `json:"at"`
	Details string  `json:"details"`
}

// Alert is a detection produced by the rule engine. The id is assigned by
// the alert store; the store owns the record thereafter.
type Alert struct {
	ID        int64
	ClientID  *int64
	RuleID    string
	Severity  string
	Title     string
	Details   FlowEvent
	CreatedAt time.Time
}

// Severity levels
const (
	SeverityLow  = "Low"
	SeverityHigh = "High"
)

// Traffic directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
	DirectionInternal = "internal"
	DirectionExternal = "external"
)
