package rules

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/models"
	"github.com/intellicloud/netsentry/pkg/notify"
	"github.com/intellicloud/netsentry/pkg/store"
)

// Engine caches the compiled rule set for the process lifetime and
// evaluates events against it. Evaluation never fails: collaborator
// errors are logged and degrade to "no alert".
type Engine struct {
	path      string
	log       *logrus.Logger
	alerts    store.AlertStore
	blocklist store.Blocklist
	notifier  notify.Notifier

	loadOnce sync.Once
	cache    atomic.Pointer[[]Rule]
}

// NewEngine creates an engine loading rules lazily from path.
func NewEngine(path string, alerts store.AlertStore, blocklist store.Blocklist, notifier notify.Notifier, log *logrus.Logger) *Engine {
	return &Engine{
		path:      path,
		log:       log,
		alerts:    alerts,
		blocklist: blocklist,
		notifier:  notifier,
	}
}

// Reload replaces the cached rule set atomically. Concurrent evaluations
// see either the old or the new set, never a mix.
func (e *Engine) Reload() (int, error) {
	rules, err := LoadFile(e.path, e.log)
	if err != nil {
		return 0, fmt.Errorf("reload rules: %w", err)
	}
	e.cache.Store(&rules)
	return len(rules), nil
}

// Rules returns the cached rule set, loading it on first use. A load
// failure yields an empty set so evaluation can proceed.
func (e *Engine) Rules() []Rule {
	e.loadOnce.Do(func() {
		if e.cache.Load() != nil {
			return
		}
		rules, err := LoadFile(e.path, e.log)
		if err != nil {
			e.log.WithError(err).Warn("Rule load failed, running with empty rule set")
			rules = nil
		}
		e.cache.Store(&rules)
	})
	return *e.cache.Load()
}

// Evaluate runs every rule against ev in defined order and returns the
// ids of the alerts actually created.
func (e *Engine) Evaluate(ev *models.FlowEvent, clientID *int64) []int64 {
	var created []int64

	ruleSet := e.Rules()
	for i := range ruleSet {
		rule := &ruleSet[i]
		if !rule.Matches(ev, e.blocklist) {
			continue
		}

		var alertID int64
		if e.alerts != nil {
			id, err := e.alerts.CreateAlert(clientID, rule.ID, rule.Severity, rule.Title, *ev)
			if err != nil {
				e.log.WithError(err).WithField("rule", rule.ID).Warn("Alert creation failed")
			} else {
				alertID = id
				created = append(created, id)
			}
		}

		e.runActions(rule, ev, clientID, alertID)
	}
	return created
}

func (e *Engine) runActions(rule *Rule, ev *models.FlowEvent, clientID *int64, alertID int64) {
	for _, action := range rule.Actions {
		switch action.Type {
		case ActionLog:
			// Reserved marker; richer logging hangs off this later.

		case ActionBlockIP:
			if ev.Src == "" || e.blocklist == nil {
				continue
			}
			reason := fmt.Sprintf("rule:%s", rule.ID)
			if err := e.blocklist.BlockIP(clientID, ev.Src, reason); err != nil {
				e.log.WithError(err).WithField("rule", rule.ID).Warn("Blocklist insert failed")
			}

		case ActionNotify:
			if e.notifier != nil {
				e.notifier.Notify(rule.ID, alertID)
			}

		default:
			e.log.WithFields(logrus.Fields{
				"rule":   rule.ID,
				"action": action.Type,
			}).Warn("Unknown rule action ignored")
		}
	}
}
