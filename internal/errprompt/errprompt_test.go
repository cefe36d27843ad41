package errprompt

import (
	"reflect"
	"strings"
	"testing"
)

func mustMatcher(t *testing.T, rules []Rule) *Matcher {
	t.Helper()
	m, err := NewMatcher(rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestMatchPermissionDenied(t *testing.T) {
	t.Parallel()
	m := mustMatcher(t, []Rule{
		{Pattern: `(?i)permission denied`, Message: "Ask the user to check table grants."},
	})
	got := m.Match("ERROR: permission denied for table users (SQLSTATE 42501)")
	if got != "Ask the user to check table grants." {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestDefaultRulesRelationMissing(t *testing.T) {
	t.Parallel()
	m := mustMatcher(t, DefaultRules)
	got := m.Match(`ERROR: relation "foo" does not exist (SQLSTATE 42P01)`)
	if !strings.Contains(got, "get_table_schema") {
		t.Fatalf("expected hint to mention get_table_schema, got %q", got)
	}
	if m.Match("syntax error at or near \"selec\"") != "" {
		t.Fatal("expected no hint for syntax errors")
	}
}

func TestMultipleMatches(t *testing.T) {
	t.Parallel()
	m := mustMatcher(t, []Rule{
		{Pattern: `(?i)permission denied`, Message: "Check your privileges."},
		{Pattern: `(?i)denied.*table`, Message: "Verify table access grants."},
	})
	got := m.Match("permission denied for table users")
	expected := "Check your privileges.\nVerify table access grants."
	if got != expected {
		t.Fatalf("expected %q, got %q", expected, got)
	}
	patterns := m.MatchedPatterns("permission denied for table users")
	if !reflect.DeepEqual(patterns, []string{`(?i)permission denied`, `(?i)denied.*table`}) {
		t.Fatalf("unexpected patterns %v", patterns)
	}
}

func TestEmptyAndNilMatcher(t *testing.T) {
	t.Parallel()
	m := mustMatcher(t, nil)
	if got := m.Match("any error at all"); got != "" {
		t.Fatalf("expected empty string with no rules, got: %s", got)
	}
	var nilMatcher *Matcher
	if nilMatcher.Match("x") != "" || nilMatcher.MatchedPatterns("x") != nil {
		t.Fatal("expected nil matcher to match nothing")
	}
}

func TestNewMatcherErrors(t *testing.T) {
	t.Parallel()
	_, err := NewMatcher([]Rule{{Pattern: `[invalid`, Message: "should not compile"}})
	if err == nil || !strings.Contains(err.Error(), "invalid regex pattern") || !strings.Contains(err.Error(), "[invalid") {
		t.Fatalf("expected invalid regex error, got: %v", err)
	}
	_, err = NewMatcher([]Rule{{Pattern: `x`, Message: "  "}})
	if err == nil || !strings.Contains(err.Error(), "empty message") {
		t.Fatalf("expected empty message error, got: %v", err)
	}
}
