// Package timeout resolves optional statement deadlines for execute-sql.
// A zero duration means the statement runs until the database returns.
package timeout

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Rule applies Timeout to statements matching Pattern.
type Rule struct {
	Pattern string
	Timeout time.Duration
}

// Config is the timeout manager's own config type.
type Config struct {
	Default time.Duration
	Rules   []Rule
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

// NewManager creates a new Manager. Returns an error on invalid regex patterns
// or negative durations.
func NewManager(config Config) (*Manager, error) {
	if config.Default < 0 {
		return nil, fmt.Errorf("timeout: default must be >= 0, got %s", config.Default)
	}
	compiled := make([]compiledRule, len(config.Rules))
	for i, r := range config.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("timeout: invalid regex pattern %q: %v", r.Pattern, err)
		}
		if r.Timeout <= 0 {
			return nil, fmt.Errorf("timeout: rule %q must have a positive timeout", r.Pattern)
		}
		compiled[i] = compiledRule{pattern: re, timeout: r.Timeout}
	}
	return &Manager{rules: compiled, defaultTimeout: config.Default}, nil
}

// Resolve returns the timeout for sql and the pattern that selected it.
// First matching rule wins; otherwise the default applies with an empty pattern.
func (m *Manager) Resolve(sql string) (time.Duration, string) {
	for _, rule := range m.rules {
		if rule.pattern.MatchString(sql) {
			return rule.timeout, rule.pattern.String()
		}
	}
	return m.defaultTimeout, ""
}

// WithTimeout derives a context bounded by d. A non-positive d adds no
// deadline; the returned cancel func must still be called.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
