// Package pipeline turns raw ingest items into classified flow events.
package pipeline

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/intellicloud/netsentry/pkg/models"
)

var (
	// ErrBadPayload means the outer ingest body is neither a JSON array
	// nor a JSON object.
	ErrBadPayload = errors.New("bad_json")

	// ErrItemsNotList means the payload object carries an "items" key
	// that is not an array.
	ErrItemsNotList = errors.New("items_must_be_list")
)

// DecodeBatch parses an ingest body into raw items. Accepted shapes are a
// JSON array of items or {"items": [...]}; an object without "items"
// yields an empty batch. Non-object entries are dropped here so the batch
// never fails on a single malformed item.
func DecodeBatch(body []byte) ([]map[string]interface{}, error) {
	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrBadPayload
	}

	var raw []interface{}
	switch v := payload.(type) {
	case []interface{}:
		raw = v
	case map[string]interface{}:
		entry, present := v["items"]
		if !present {
			return nil, nil
		}
		list, ok := entry.([]interface{})
		if !ok {
			return nil, ErrItemsNotList
		}
		raw = list
	default:
		return nil, ErrBadPayload
	}

	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Normalize builds a FlowEvent from one raw item. The id is freshly
// generated; the timestamp falls back to now when absent or non-numeric;
// protocol defaults to "ip"; ports fall back to nil on coercion failure.
// Direction and severity are filled from the classifier.
func Normalize(item map[string]interface{}, now time.Time) models.FlowEvent {
	ev := models.FlowEvent{
		ID:        uuid.NewString(),
		Timestamp: toTimestamp(item["ts"], now),
		Src:       toString(item["src"]),
		Dst:       toString(item["dst"]),
		Proto:     toString(item["proto"]),
		SrcPort:   toPort(item["sport"]),
		DstPort:   toPort(item["dport"]),
		DNS:       toString(item["dns"]),
		UserAgent: toString(item["ua"]),
	}
	if ev.Proto == "" {
		ev.Proto = "ip"
	}
	if ev.UserAgent == "" {
		ev.UserAgent = toString(item["user_agent"])
	}
	if lvl := toPort(item["threat_level"]); lvl != nil && *lvl > 0 {
		ev.ThreatLevel = *lvl
	}
	ev.Direction = InferDirection(ev.Src, ev.Dst)
	ev.Severity = ScoreSeverity(ev.Proto, ev.DstPort)
	return ev
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func toTimestamp(v interface{}, now time.Time) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	}
	return float64(now.UnixNano()) / 1e9
}

// toPort coerces a JSON value to an int, returning nil when it cannot.
func toPort(v interface{}) *int {
	switch n := v.(type) {
	case float64:
		p := int(n)
		return &p
	case string:
		if p, err := strconv.Atoi(n); err == nil {
			return &p
		}
	}
	return nil
}
