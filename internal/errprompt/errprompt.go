// Package errprompt turns driver error text into a short hint for the
// calling agent.
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule pairs an error pattern with the hint shown when it matches.
type Rule struct {
	Pattern string
	Message string
}

// DefaultRules cover the failures an agent can usually fix by itself.
var DefaultRules = []Rule{
	{Pattern: `(?i)relation .* does not exist`, Message: "The table does not exist. Check the name with get_table_schema or query information_schema.tables."},
	{Pattern: `(?i)column .* does not exist`, Message: "The column does not exist. Use get_table_schema to list the table's columns."},
	{Pattern: `(?i)permission denied`, Message: "The database user lacks privileges for this object."},
	{Pattern: `(?i)read-only transaction`, Message: "Only reads are allowed."},
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
}

// Matcher checks error messages against patterns and returns guidance prompts.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if strings.TrimSpace(r.Message) == "" {
			return nil, fmt.Errorf("errprompt: empty message for pattern %q", r.Pattern)
		}
		compiled = append(compiled, compiledRule{pattern: re, message: r.Message})
	}
	return &Matcher{rules: compiled}, nil
}

// Match returns every matching message, top to bottom, joined by newlines.
// Empty when nothing matches or m is nil.
func (m *Matcher) Match(errMsg string) string {
	if m == nil {
		return ""
	}
	var matches []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the regex patterns that matched the given error message.
func (m *Matcher) MatchedPatterns(errMsg string) []string {
	if m == nil {
		return nil
	}
	var patterns []string
	for _, rule := range m.rules {
		if rule.pattern.MatchString(errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}
