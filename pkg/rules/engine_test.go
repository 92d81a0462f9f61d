package rules

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/models"
	"github.com/intellicloud/netsentry/pkg/store"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeNotifier) Notify(ruleID string, alertID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, alertID)
}

type failingAlertStore struct{}

func (failingAlertStore) CreateAlert(_ *int64, _, _, _ string, _ models.FlowEvent) (int64, error) {
	return 0, errors.New("no connectivity")
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newEngine(t *testing.T, content string, alerts store.AlertStore, blocklist store.Blocklist, notifier *fakeNotifier) *Engine {
	t.Helper()
	return NewEngine(writeRules(t, content), alerts, blocklist, notifier, testLogger())
}

func TestEmptyWhenMatchesEverything(t *testing.T) {
	mem := store.NewMemStore()
	e := newEngine(t, `
- id: r-any
  title: Any event
  severity: Low
  when: {}
  actions: []
`, mem, mem, &fakeNotifier{})

	ids := e.Evaluate(&models.FlowEvent{Src: "8.8.8.8"}, nil)
	if len(ids) != 1 {
		t.Fatalf("Expected 1 alert from unconditional rule, got %d", len(ids))
	}
}

func TestThresholdPredicate(t *testing.T) {
	mem := store.NewMemStore()
	e := newEngine(t, `
- id: r-high
  title: High threat
  severity: High
  when:
    threat_level_gte: 3
  actions: []
`, mem, mem, &fakeNotifier{})

	low := &models.FlowEvent{Severity: models.SeverityLow}
	if ids := e.Evaluate(low, nil); len(ids) != 0 {
		t.Errorf("Expected no alert for Low event, got %d", len(ids))
	}

	high := &models.FlowEvent{Severity: models.SeverityHigh}
	if ids := e.Evaluate(high, nil); len(ids) != 1 {
		t.Errorf("Expected 1 alert for High event, got %d", len(ids))
	}

	explicit := &models.FlowEvent{ThreatLevel: 5}
	if ids := e.Evaluate(explicit, nil); len(ids) != 1 {
		t.Errorf("Expected 1 alert for explicit threat level, got %d", len(ids))
	}
}

func TestUserAgentPredicate(t *testing.T) {
	mem := store.NewMemStore()
	e := newEngine(t, `
- id: r-scanner
  title: Scanner UA
  severity: High
  when:
    ua_regex: "sqlmap|nikto"
  actions: []
`, mem, mem, &fakeNotifier{})

	if ids := e.Evaluate(&models.FlowEvent{UserAgent: "SQLMap/1.7"}, nil); len(ids) != 1 {
		t.Errorf("Expected case-insensitive UA match, got %d alerts", len(ids))
	}
	if ids := e.Evaluate(&models.FlowEvent{UserAgent: "Mozilla/5.0"}, nil); len(ids) != 0 {
		t.Errorf("Expected no match for benign UA, got %d alerts", len(ids))
	}
	if ids := e.Evaluate(&models.FlowEvent{}, nil); len(ids) != 0 {
		t.Errorf("Expected no match for absent UA, got %d alerts", len(ids))
	}
}

func TestBlocklistPredicate(t *testing.T) {
	mem := store.NewMemStore()
	e := newEngine(t, `
- id: r-fresh
  title: Not yet blocked
  severity: Low
  when:
    ip_in_blocklist: false
  actions:
    - type: block_ip
`, mem, mem, &fakeNotifier{})

	ev := &models.FlowEvent{Src: "203.0.113.5"}
	if ids := e.Evaluate(ev, nil); len(ids) != 1 {
		t.Fatalf("Expected match for unblocked source, got %d alerts", len(ids))
	}

	// The block_ip action fired, so the same source no longer matches.
	if blocked, _ := mem.IsIPBlocked("203.0.113.5"); !blocked {
		t.Fatal("Expected source blocked by action")
	}
	if ids := e.Evaluate(ev, nil); len(ids) != 0 {
		t.Errorf("Expected no match once source is blocked, got %d alerts", len(ids))
	}
}

func TestActionsRunInOrder(t *testing.T) {
	mem := store.NewMemStore()
	notifier := &fakeNotifier{}
	e := newEngine(t, `
- id: r-block
  title: Block and notify
  severity: High
  when: {}
  actions:
    - type: log
    - type: block_ip
    - type: notify
`, mem, mem, notifier)

	ids := e.Evaluate(&models.FlowEvent{Src: "198.51.100.7"}, nil)
	if len(ids) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(ids))
	}
	if blocked, _ := mem.IsIPBlocked("198.51.100.7"); !blocked {
		t.Error("Expected block_ip action to fire")
	}
	if len(notifier.calls) != 1 || notifier.calls[0] != ids[0] {
		t.Errorf("Expected notify with alert id %d, got %v", ids[0], notifier.calls)
	}
}

func TestBlockIPIdempotentAcrossEvaluations(t *testing.T) {
	mem := store.NewMemStore()
	e := newEngine(t, `
- id: r-block
  title: Block
  severity: High
  when: {}
  actions:
    - type: block_ip
`, mem, mem, &fakeNotifier{})

	ev := &models.FlowEvent{Src: "198.51.100.7"}
	e.Evaluate(ev, nil)
	e.Evaluate(ev, nil)
	if got := mem.BlockedCount(); got != 1 {
		t.Errorf("Expected exactly 1 blocklist entry after repeat evaluation, got %d", got)
	}
}

func TestAlertStoreFailureDegrades(t *testing.T) {
	mem := store.NewMemStore()
	notifier := &fakeNotifier{}
	e := newEngine(t, `
- id: r-any
  title: Any
  severity: Low
  when: {}
  actions:
    - type: notify
`, failingAlertStore{}, mem, notifier)

	ids := e.Evaluate(&models.FlowEvent{Src: "8.8.8.8"}, nil)
	if len(ids) != 0 {
		t.Errorf("Expected no alert ids on store failure, got %v", ids)
	}
	// Actions still run, referencing no alert.
	if len(notifier.calls) != 1 || notifier.calls[0] != 0 {
		t.Errorf("Expected notify with zero alert id, got %v", notifier.calls)
	}
}

func TestUnknownPredicateIgnored(t *testing.T) {
	// The misspelled threshold key from legacy rule files must not
	// silently disable the rest of the clause.
	rules, err := Parse([]byte(`
- id: r-legacy
  title: Legacy
  severity: Low
  when:
    threat_level_gtc: 3
    ua_regex: "curl"
  actions: []
`), testLogger())
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(rules) != 1 || len(rules[0].predicates) != 1 {
		t.Fatalf("Expected 1 rule with 1 compiled predicate, got %+v", rules)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse([]byte(`{not yaml`), testLogger()); err == nil {
		t.Error("Expected error for invalid YAML")
	}
	if _, err := Parse([]byte(`
- id: r-bad
  when:
    ua_regex: "*["
`), testLogger()); err == nil {
		t.Error("Expected error for invalid regex")
	}
	if _, err := Parse([]byte(`
- id: r-bad
  when:
    threat_level_gte: "three"
`), testLogger()); err == nil {
		t.Error("Expected error for non-integer threshold")
	}
}

func TestReload(t *testing.T) {
	mem := store.NewMemStore()
	path := writeRules(t, `
- id: r-one
  title: One
  severity: Low
  when: {}
  actions: []
`)
	e := NewEngine(path, mem, mem, &fakeNotifier{}, testLogger())
	if got := len(e.Rules()); got != 1 {
		t.Fatalf("Expected 1 rule loaded, got %d", got)
	}

	if err := os.WriteFile(path, []byte(`
- id: r-one
  title: One
  severity: Low
  when: {}
  actions: []
- id: r-two
  title: Two
  severity: High
  when: {}
  actions: []
`), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := e.Reload()
	if err != nil {
		t.Fatalf("Reload returned error: %v", err)
	}
	if n != 2 || len(e.Rules()) != 2 {
		t.Errorf("Expected 2 rules after reload, got %d", len(e.Rules()))
	}
}

func TestDefaultRuleSet(t *testing.T) {
	mem := store.NewMemStore()
	e := NewEngine("../../rules/rules.yaml", mem, mem, &fakeNotifier{}, testLogger())
	if got := len(e.Rules()); got != 3 {
		t.Fatalf("Expected 3 shipped rules, got %d", got)
	}

	// A benign Low flow from an unlisted source must not alert.
	benign := &models.FlowEvent{Src: "198.51.100.20", Proto: "udp", Severity: models.SeverityLow}
	if ids := e.Evaluate(benign, nil); len(ids) != 0 {
		t.Errorf("Expected no alerts for benign event, got %d", len(ids))
	}

	// Once the source is blocked, only the repeat-offender rule fires.
	if err := mem.BlockIP(nil, "198.51.100.20", "manual"); err != nil {
		t.Fatal(err)
	}
	ids := e.Evaluate(benign, nil)
	if len(ids) != 1 {
		t.Fatalf("Expected 1 alert for blocked source, got %d", len(ids))
	}
	alerts := mem.Alerts()
	if alerts[len(alerts)-1].RuleID != "r-repeat-offender" {
		t.Errorf("Expected r-repeat-offender, got %q", alerts[len(alerts)-1].RuleID)
	}
}

func TestMissingRuleFileYieldsEmptySet(t *testing.T) {
	mem := store.NewMemStore()
	e := NewEngine("/nonexistent/rules.yaml", mem, mem, &fakeNotifier{}, testLogger())
	if ids := e.Evaluate(&models.FlowEvent{}, nil); len(ids) != 0 {
		t.Errorf("Expected no alerts with missing rule file, got %v", ids)
	}
}
