// Package timeout resolves per-statement execution timeouts. Every statement
// gets the fixed default unless a configured SQL pattern overrides it.
package timeout

import (
	"fmt"
	"regexp"
	"time"
)

// Rule maps a SQL regex pattern to a timeout.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves statement timeouts based on SQL pattern matching.
type Manager struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewManager creates a Manager. Returns an error on invalid regex patterns
// or a non-positive default.
func NewManager(defaultTimeout time.Duration, rules []Rule) (*Manager, error) {
	if defaultTimeout <= 0 {
		return nil, fmt.Errorf("timeout: default timeout must be > 0, got %s", defaultTimeout)
	}
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if r.Timeout <= 0 {
			return nil, fmt.Errorf("timeout: rule %q has non-positive timeout", r.Pattern)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: defaultTimeout}, nil
}

// Resolve returns the timeout for the given SQL and the pattern of the rule
// that matched, if any. First matching rule wins; otherwise the default
// applies and the returned pattern is empty.
func (m *Manager) Resolve(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.defaultTimeout, ""
}
