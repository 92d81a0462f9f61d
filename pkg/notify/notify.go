// Package notify delivers best-effort notifications for matched rules.
// Delivery is fire-and-forget with no acknowledgement; a failed publish
// is logged and forgotten.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Notifier emits a process-visible notification for a matched rule.
// alertID is 0 when no alert row was created.
type Notifier interface {
	Notify(ruleID string, alertID int64)
}

// RedisNotifier publishes notifications to a Redis channel for dashboard
// and responder processes.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     *logrus.Logger
}

// NewRedisNotifier creates a notifier publishing to channel.
func NewRedisNotifier(client *redis.Client, channel string, log *logrus.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, log: log}
}

// Notify publishes the notification; failures are logged, never returned.
func (n *RedisNotifier) Notify(ruleID string, alertID int64) {
	payload, _ := json.Marshal(map[string]interface{}{
		"rule_id":  ruleID,
		"alert_id": alertID,
		"at":       float64(time.Now().UnixNano()) / 1e9,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.log.WithError(err).WithField("rule", ruleID).Warn("Notification publish failed")
	}
}

// LogNotifier writes notifications to the process log. Used when Redis is
// not configured.
type LogNotifier struct {
	log *logrus.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(log *logrus.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(ruleID string, alertID int64) {
	n.log.WithFields(logrus.Fields{
		"rule":  ruleID,
		"alert": alertID,
	}).Info("Rule notification")
}
