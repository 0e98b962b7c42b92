package errprompt

import (
	"strings"
	"testing"
)

func TestEvaluateNoRules(t *testing.T) {
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatal(err)
	}
	msg, patterns := m.Evaluate("relation \"users\" does not exist")
	if msg != "" || patterns != nil {
		t.Errorf("expected no matches, got %q %v", msg, patterns)
	}
}

func TestEvaluateCollectsAllMatches(t *testing.T) {
	m, err := NewMatcher([]Rule{
		{Pattern: `does not exist`, Message: "Check list_tables for available tables."},
		{Pattern: `relation`, Message: "Table names are case-sensitive when quoted."},
		{Pattern: `permission denied`, Message: "This user has read-only access."},
	})
	if err != nil {
		t.Fatal(err)
	}

	msg, patterns := m.Evaluate("ERROR: relation \"users\" does not exist")
	if !strings.Contains(msg, "Check list_tables") || !strings.Contains(msg, "case-sensitive") {
		t.Errorf("expected both matching messages, got %q", msg)
	}
	if strings.Contains(msg, "read-only") {
		t.Errorf("non-matching rule leaked into %q", msg)
	}
	if len(patterns) != 2 {
		t.Errorf("patterns = %v", patterns)
	}
}

func TestEvaluateOrderIsRuleOrder(t *testing.T) {
	m, err := NewMatcher([]Rule{
		{Pattern: `a`, Message: "first"},
		{Pattern: `b`, Message: "second"},
	})
	if err != nil {
		t.Fatal(err)
	}
	msg, _ := m.Evaluate("ab")
	if msg != "first\nsecond" {
		t.Errorf("messages out of order: %q", msg)
	}
}

func TestNewMatcherRejectsInvalidRegex(t *testing.T) {
	if _, err := NewMatcher([]Rule{{Pattern: "(", Message: "x"}}); err == nil {
		t.Error("expected invalid regex to be rejected")
	}
}
