// Package sanitize masks sensitive values in execute-sql result rows.
package sanitize

import (
	"fmt"
	"regexp"
)

// Rule replaces Pattern matches with Replacement. When Column is set the rule
// only applies to that result column (top-level key).
type Rule struct {
	Pattern     string
	Replacement string
	Column      string
}

type compiledRule struct {
	pattern     *regexp.Regexp
	replacement string
	column      string
}

// Sanitizer applies regex-based sanitization to result row values.
type Sanitizer struct {
	rules []compiledRule
}

// NewSanitizer creates a new Sanitizer. Returns an error on invalid regex patterns.
func NewSanitizer(rules []Rule) (*Sanitizer, error) {
	compiled := make([]compiledRule, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitize: invalid regex pattern %q: %v", r.Pattern, err)
		}
		compiled[i] = compiledRule{pattern: re, replacement: r.Replacement, column: r.Column}
	}
	return &Sanitizer{rules: compiled}, nil
}

// HasRules returns true if the sanitizer has any rules configured.
func (s *Sanitizer) HasRules() bool {
	return len(s.rules) > 0
}

// SanitizeRows rewrites string values in place. Nested JSON objects and
// arrays are walked; their values inherit the top-level column name.
func (s *Sanitizer) SanitizeRows(rows []map[string]interface{}) []map[string]interface{} {
	if !s.HasRules() {
		return rows
	}
	for _, row := range rows {
		for col, v := range row {
			row[col] = s.sanitizeValue(col, v)
		}
	}
	return rows
}

func (s *Sanitizer) sanitizeValue(column string, v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		for _, rule := range s.rules {
			if rule.column != "" && rule.column != column {
				continue
			}
			val = rule.pattern.ReplaceAllString(val, rule.replacement)
		}
		return val
	case map[string]interface{}:
		for k, item := range val {
			val[k] = s.sanitizeValue(column, item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = s.sanitizeValue(column, item)
		}
		return val
	default:
		return v
	}
}
