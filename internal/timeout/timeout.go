// Package timeout picks a query deadline by matching SQL text against
// ordered regex rules.
package timeout

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Rule maps a SQL pattern to a deadline. A zero Timeout means no deadline.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type.
type Config struct {
	// DefaultTimeout applies when no rule matches. Zero means no deadline.
	DefaultTimeout time.Duration
	Rules          []Rule
}

type compiledRule struct {
	pattern *regexp.Regexp
	timeout time.Duration
}

// Manager resolves query timeouts based on SQL pattern matching.
type Manager struct {
	rules          []compiledRule
	defaultTimeout time.Duration
}

// NewManager compiles every rule. Returns an error on invalid regex patterns
// or negative durations.
func NewManager(config Config) (*Manager, error) {
	if config.DefaultTimeout < 0 {
		return nil, fmt.Errorf("timeout: negative default timeout %v", config.DefaultTimeout)
	}
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if r.Timeout < 0 {
			return nil, fmt.Errorf("timeout: negative timeout %v for pattern %q", r.Timeout, r.Pattern)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: config.DefaultTimeout}, nil
}

// GetTimeout returns the timeout for the given SQL.
// First matching rule wins. Falls back to default.
func (m *Manager) GetTimeout(sql string) time.Duration {
	d, _ := m.GetTimeoutWithPattern(sql)
	return d
}

// GetTimeoutWithPattern is GetTimeout plus the pattern that decided it,
// empty when the default applied.
func (m *Manager) GetTimeoutWithPattern(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.defaultTimeout, ""
}

// WithDeadline derives a context bounded by the resolved timeout. When the
// timeout is zero the returned context is ctx itself.
func (m *Manager) WithDeadline(ctx context.Context, sql string) (context.Context, context.CancelFunc) {
	d := m.GetTimeout(sql)
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
