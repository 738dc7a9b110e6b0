// Package sqlguard decides whether a SQL statement may run under safe mode.
//
// The classifier is a keyword heuristic over statement text, not a parser.
// A deny-listed word inside a string literal or comment still classifies the
// statement as mutating. False positives are accepted; the deny list must
// stay exhaustive for PostgreSQL to keep false negatives out.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

// KeywordsVersion is bumped whenever the deny list changes.
const KeywordsVersion = 1

// denyList holds the mutating keywords. Multi-word entries match with any
// run of whitespace between the words.
var denyList = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"MERGE",
	"TRUNCATE",
	"ALTER",
	"DROP",
	"CREATE",
	"REINDEX",
	"VACUUM",
	"GRANT",
	"REVOKE",
	"COPY",
	"ANALYZE",
	"SET ROLE",
	"BEGIN",
	"COMMIT",
	"ROLLBACK",
}

var (
	explainRe  = regexp.MustCompile(`(?i)^\s*EXPLAIN\b`)
	mutatingRe = compileDenyList(denyList)
	spaceRe    = regexp.MustCompile(`\s+`)
)

func compileDenyList(words []string) *regexp.Regexp {
	alts := make([]string, len(words))
	for i, w := range words {
		parts := strings.Fields(w)
		for j, p := range parts {
			parts[j] = regexp.QuoteMeta(p)
		}
		alts[i] = strings.Join(parts, `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// Keywords returns a copy of the deny list.
func Keywords() []string {
	out := make([]string, len(denyList))
	copy(out, denyList)
	return out
}

// IsExplain reports whether the statement starts with EXPLAIN, ignoring
// leading whitespace and case.
func IsExplain(stmt string) bool {
	return explainRe.MatchString(stmt)
}

// IsMutating reports whether any deny-listed keyword appears in the statement
// as a whole word.
func IsMutating(stmt string) bool {
	return mutatingRe.MatchString(stmt)
}

// MatchedKeyword returns the first deny-listed keyword found in the statement,
// upper-cased with single spaces.
func MatchedKeyword(stmt string) (string, bool) {
	m := mutatingRe.FindString(stmt)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(spaceRe.ReplaceAllString(m, " ")), true
}

// DenialError is returned by Guard.Check when safe mode rejects a statement.
type DenialError struct {
	Keyword string
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("statement rejected: safe mode only allows read-only statements, found mutating keyword %s", e.Keyword)
}

// Guard gates statements for one safe-mode setting.
type Guard struct {
	SafeMode bool
}

// Permits reports whether the statement may run.
func (g Guard) Permits(stmt string) bool {
	if !g.SafeMode {
		return true
	}
	return IsExplain(stmt) || !IsMutating(stmt)
}

// Check returns a *DenialError when the statement may not run, nil otherwise.
// With safe mode off every statement passes; the database role's grants are
// the only remaining control.
func (g Guard) Check(stmt string) error {
	if g.Permits(stmt) {
		return nil
	}
	kw, _ := MatchedKeyword(stmt)
	return &DenialError{Keyword: kw}
}
