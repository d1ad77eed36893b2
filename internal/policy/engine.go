// Package policy evaluates placement requests against an operator-supplied
// YAML rule set. Policy is advisory configuration, not authorization; the
// built-in checks (inactive workers) always apply.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type RuleMatch struct {
	WorkerRole string `yaml:"worker_role"`
	WorkClass  string `yaml:"work_class"`
	LineID     string `yaml:"line_id"`
	ShiftType  string `yaml:"shift_type"`
}

type Rule struct {
	Name   string    `yaml:"name"`
	Effect string    `yaml:"effect"` // allow|deny
	Reason string    `yaml:"reason"`
	Match  RuleMatch `yaml:"match"`
}

type Config struct {
	DefaultAction string `yaml:"default_action"` // allow|deny
	Rules         []Rule `yaml:"rules"`
}

type Decision struct {
	Allowed    bool
	ReasonCode string
	Rule       string
	Message    string
}

type PlacementInput struct {
	WorkerRole   string
	WorkerActive bool
	WorkClass    string
	LineID       string
	ShiftType    string
}

type Engine struct {
	defaultAction string
	rules         []Rule
	noop          bool
}

func NewAllowAll() *Engine {
	return &Engine{
		defaultAction: "allow",
		rules:         nil,
		noop:          true,
	}
}

func LoadFromEnv() (*Engine, error) {
	path := strings.TrimSpace(os.Getenv("ROSTERD_POLICY_FILE"))
	if path == "" {
		return NewAllowAll(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	return NewFromConfig(cfg), nil
}

func NewFromConfig(cfg Config) *Engine {
	e := &Engine{
		defaultAction: normalizeAction(cfg.DefaultAction),
		rules:         make([]Rule, 0, len(cfg.Rules)),
	}
	for _, r := range cfg.Rules {
		r.Effect = normalizeAction(r.Effect)
		if r.Effect == "" {
			r.Effect = "deny"
		}
		e.rules = append(e.rules, r)
	}
	if e.defaultAction == "" {
		e.defaultAction = "allow"
	}
	if e.defaultAction == "allow" && len(e.rules) == 0 {
		e.noop = true
	}
	return e
}

func (e *Engine) IsNoop() bool { return e != nil && e.noop }

func (e *Engine) EvaluatePlacement(in PlacementInput) Decision {
	if !in.WorkerActive {
		return Decision{
			Allowed:    false,
			ReasonCode: "worker_inactive",
			Rule:       "builtin.active_workers_only",
			Message:    "inactive workers cannot be placed",
		}
	}
	for _, r := range e.rules {
		if !matches(r.Match, in) {
			continue
		}
		allowed := r.Effect == "allow"
		reason := "policy_rule_" + r.Effect
		if r.Reason != "" {
			reason = strings.TrimSpace(r.Reason)
		}
		msg := reason
		if r.Name != "" {
			msg = r.Name + ": " + reason
		}
		return Decision{
			Allowed:    allowed,
			ReasonCode: reason,
			Rule:       r.Name,
			Message:    msg,
		}
	}
	if e.defaultAction == "deny" {
		return Decision{
			Allowed:    false,
			ReasonCode: "default_deny",
			Rule:       "default_action",
			Message:    "placement denied by default_action=deny",
		}
	}
	return Decision{
		Allowed:    true,
		ReasonCode: "default_allow",
		Rule:       "default_action",
		Message:    "placement allowed by default_action=allow",
	}
}

func matches(rule RuleMatch, in PlacementInput) bool {
	if rule.WorkerRole != "" && rule.WorkerRole != in.WorkerRole {
		return false
	}
	if rule.WorkClass != "" && rule.WorkClass != in.WorkClass {
		return false
	}
	if rule.LineID != "" && rule.LineID != in.LineID {
		return false
	}
	if rule.ShiftType != "" && rule.ShiftType != in.ShiftType {
		return false
	}
	return true
}

func normalizeAction(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "allow", "deny":
		return v
	default:
		return ""
	}
}
