// Package errprompt matches execution error messages against configured
// patterns and produces operator guidance to append to the error text.
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error message regex pattern to a guidance message.
type Rule struct {
	Pattern string
	Message string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher checks error messages against rules in order.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message}
	}
	return &Matcher{rules: compiled}, nil
}

// Evaluate checks errMsg against all rules, top to bottom. It returns the
// matching guidance messages joined with newlines (empty when nothing
// matched) and the patterns that matched, for logging.
func (m *Matcher) Evaluate(errMsg string) (string, []string) {
	var messages, patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			messages = append(messages, rule.message)
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return strings.Join(messages, "\n"), patterns
}
