// Package rules evaluates flow events against a declarative rule set,
// raising alerts and executing remediation actions.
package rules

import (
	"fmt"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/intellicloud/netsentry/pkg/models"
	"github.com/intellicloud/netsentry/pkg/store"
)

// Action is one ordered side effect of a matched rule.
type Action struct {
	Type string `yaml:"type"`
}

// Action types.
const (
	ActionLog     = "log"
	ActionBlockIP = "block_ip"
	ActionNotify  = "notify"
)

// predicate is one compiled condition of a rule's when clause. The
// vocabulary is a closed set of variants; adding a kind means adding a
// type here and a case in compile.
type predicate interface {
	matches(ev *models.FlowEvent, blocklist store.Blocklist) bool
}

// thresholdPredicate matches when the event's threat level meets min.
type thresholdPredicate struct {
	min int
}

func (p thresholdPredicate) matches(ev *models.FlowEvent, _ store.Blocklist) bool {
	return ev.ThreatScore() >= p.min
}

// patternPredicate matches the event's user-agent case-insensitively.
type patternPredicate struct {
	re *regexp.Regexp
}

func (p patternPredicate) matches(ev *models.FlowEvent, _ store.Blocklist) bool {
	return p.re.MatchString(ev.UserAgent)
}

// blocklistPredicate matches on the source address's blocklist
// membership. A lookup failure degrades to "not blocked".
type blocklistPredicate struct {
	want bool
}

func (p blocklistPredicate) matches(ev *models.FlowEvent, blocklist store.Blocklist) bool {
	blocked := false
	if blocklist != nil {
		if b, err := blocklist.IsIPBlocked(ev.Src); err == nil {
			blocked = b
		}
	}
	return blocked == p.want
}

// Rule is one compiled detection rule. A rule with no predicates matches
// every event.
type Rule struct {
	ID         string
	Title      string
	Severity   string
	Actions    []Action
	predicates []predicate
}

// Matches reports whether every predicate of the rule holds for ev.
func (r *Rule) Matches(ev *models.FlowEvent, blocklist store.Blocklist) bool {
	for _, p := range r.predicates {
		if !p.matches(ev, blocklist) {
			return false
		}
	}
	return true
}

type ruleSpec struct {
	ID       string                 `yaml:"id"`
	Title    string                 `yaml:"title"`
	Severity string                 `yaml:"severity"`
	When     map[string]interface{} `yaml:"when"`
	Actions  []Action               `yaml:"actions"`
}

// LoadFile reads and compiles a YAML rule file. Rule order is preserved.
func LoadFile(path string, log *logrus.Logger) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(data, log)
}

// Parse compiles a YAML rule list.
func Parse(data []byte, log *logrus.Logger) ([]Rule, error) {
	var specs []ruleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := compile(spec, log)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compile(spec ruleSpec, log *logrus.Logger) (Rule, error) {
	rule := Rule{
		ID:       spec.ID,
		Title:    spec.Title,
		Severity: spec.Severity,
		Actions:  spec.Actions,
	}

	for key, value := range spec.When {
		switch key {
		case "threat_level_gte":
			min, ok := toInt(value)
			if !ok {
				return Rule{}, fmt.Errorf("threat_level_gte wants an integer, got %v", value)
			}
			rule.predicates = append(rule.predicates, thresholdPredicate{min: min})

		case "ua_regex":
			pattern, ok := value.(string)
			if !ok {
				return Rule{}, fmt.Errorf("ua_regex wants a string, got %v", value)
			}
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return Rule{}, fmt.Errorf("ua_regex: %w", err)
			}
			rule.predicates = append(rule.predicates, patternPredicate{re: re})

		case "ip_in_blocklist":
			want, ok := value.(bool)
			if !ok {
				return Rule{}, fmt.Errorf("ip_in_blocklist wants a bool, got %v", value)
			}
			rule.predicates = append(rule.predicates, blocklistPredicate{want: want})

		default:
			// A misspelled predicate key would otherwise make the
			// rule silently unmatchable, so surface it loudly.
			if log != nil {
				log.WithFields(logrus.Fields{
					"rule":      spec.ID,
					"predicate": key,
				}).Warn("Unknown rule predicate ignored")
			}
		}
	}
	return rule, nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
