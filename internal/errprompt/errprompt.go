// Package errprompt appends operator-written guidance to tool error messages.
package errprompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule maps an error message pattern to a guidance message. When Kind is set
// the rule only applies to errors of that kind (e.g. "safety_denied").
type Rule struct {
	Pattern string
	Message string
	Kind    string
}

type compiledRule struct {
	pattern *regexp.Regexp
	message string
	kind    string
}

// Matcher checks error messages against patterns and returns guidance prompts.
type Matcher struct {
	rules []compiledRule
}

// NewMatcher creates a new Matcher. Returns an error on invalid regex patterns.
func NewMatcher(rules []Rule) (*Matcher, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("errprompt: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, message: r.Message, kind: r.Kind}
	}
	return &Matcher{rules: compiled}, nil
}

func (r compiledRule) matches(kind, errMsg string) bool {
	if r.kind != "" && r.kind != kind {
		return false
	}
	return r.pattern.MatchString(errMsg)
}

// Match checks an error of the given kind against all rules, top to bottom.
// Returns all matching prompt messages joined with newlines, or "".
func (m *Matcher) Match(kind, errMsg string) string {
	var matches []string
	for _, rule := range m.rules {
		if rule.matches(kind, errMsg) {
			matches = append(matches, rule.message)
		}
	}
	return strings.Join(matches, "\n")
}

// MatchedPatterns returns the regex patterns that matched. Returns nil if none.
func (m *Matcher) MatchedPatterns(kind, errMsg string) []string {
	var patterns []string
	for _, rule := range m.rules {
		if rule.matches(kind, errMsg) {
			patterns = append(patterns, rule.pattern.String())
		}
	}
	return patterns
}
