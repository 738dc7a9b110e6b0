// Package catalog joins schema-scoped catalog rows into per-table digests.
//
// Rows arrive as four independent result sets (columns, indexes, constraints,
// RLS policies). A table exists in the digest only if it has at least one
// column row; index, constraint and policy rows for any other key are orphans.
// Orphans never reach the output but are counted so callers can log them.
package catalog

import (
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultSchema is used when a caller names no schema.
const DefaultSchema = "public"

// NotNullMarker is appended to a rendered column when it is NOT NULL.
const NotNullMarker = "!"

// ColumnRow is one row of the columns query.
type ColumnRow struct {
	Schema   string
	Table    string
	Name     string
	Type     string
	Nullable bool
}

// IndexRow is one row of the indexes query.
type IndexRow struct {
	Schema     string
	Table      string
	Name       string
	Definition string
}

// ConstraintRow is one row of the constraints query. Kind is the single
// character pg_constraint.contype tag.
type ConstraintRow struct {
	Schema string
	Table  string
	Name   string
	Kind   string
}

// PolicyRow is one row of the RLS policies query.
type PolicyRow struct {
	Schema  string
	Table   string
	Name    string
	Command string
}

// TableDigest is the compact per-table summary.
type TableDigest struct {
	Schema    string   `json:"schema"`
	Table     string   `json:"table"`
	Cols      []string `json:"cols"`
	IdxCount  int      `json:"idx_count"`
	ConsCount int      `json:"cons_count"`
	RLS       bool     `json:"rls"`
}

// Orphans counts rows dropped because their table had no column rows.
type Orphans struct {
	Indexes     int `json:"indexes,omitempty"`
	Constraints int `json:"constraints,omitempty"`
	Policies    int `json:"policies,omitempty"`
}

// Total returns the number of dropped rows across all kinds.
func (o Orphans) Total() int {
	return o.Indexes + o.Constraints + o.Policies
}

// Digest is the result of one Build call.
type Digest struct {
	Tables  []TableDigest
	Orphans Orphans
}

type entry struct {
	schema      string
	table       string
	columns     []ColumnRow
	indexes     []IndexRow
	constraints []ConstraintRow
	policies    []PolicyRow
}

// Key returns the join key for a table.
func Key(schema, table string) string {
	return schema + "." + table
}

// Build joins the four result sets. Column order within a table follows the
// order of cols, which the columns query sorts by ordinal position. Tables
// appear in first-seen order.
func Build(cols []ColumnRow, indexes []IndexRow, constraints []ConstraintRow, policies []PolicyRow) Digest {
	entries := orderedmap.New[string, *entry]()
	for _, c := range cols {
		k := Key(c.Schema, c.Table)
		e, ok := entries.Get(k)
		if !ok {
			e = &entry{schema: c.Schema, table: c.Table}
			entries.Set(k, e)
		}
		e.columns = append(e.columns, c)
	}

	var orphans Orphans
	for _, idx := range indexes {
		if e, ok := entries.Get(Key(idx.Schema, idx.Table)); ok {
			e.indexes = append(e.indexes, idx)
		} else {
			orphans.Indexes++
		}
	}
	for _, con := range constraints {
		if e, ok := entries.Get(Key(con.Schema, con.Table)); ok {
			e.constraints = append(e.constraints, con)
		} else {
			orphans.Constraints++
		}
	}
	for _, pol := range policies {
		if e, ok := entries.Get(Key(pol.Schema, pol.Table)); ok {
			e.policies = append(e.policies, pol)
		} else {
			orphans.Policies++
		}
	}

	tables := make([]TableDigest, 0, entries.Len())
	for pair := entries.Oldest(); pair != nil; pair = pair.Next() {
		tables = append(tables, pair.Value.digest())
	}
	return Digest{Tables: tables, Orphans: orphans}
}

func (e *entry) digest() TableDigest {
	cols := make([]string, len(e.columns))
	for i, c := range e.columns {
		cols[i] = RenderColumn(c)
	}
	return TableDigest{
		Schema:    e.schema,
		Table:     e.table,
		Cols:      cols,
		IdxCount:  len(e.indexes),
		ConsCount: len(e.constraints),
		RLS:       len(e.policies) > 0,
	}
}

// RenderColumn formats a column as "name:type", with NotNullMarker appended
// when the column is NOT NULL.
func RenderColumn(c ColumnRow) string {
	s := c.Name + ":" + c.Type
	if !c.Nullable {
		s += NotNullMarker
	}
	return s
}

// NormalizeSchemas drops blank and duplicate names, keeping first-seen order.
// An empty result becomes [DefaultSchema].
func NormalizeSchemas(schemas []string) []string {
	seen := make(map[string]bool, len(schemas))
	out := make([]string, 0, len(schemas))
	for _, s := range schemas {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return []string{DefaultSchema}
	}
	return out
}

// SplitTableName splits "schema.table" on the first dot. A bare name resolves
// to DefaultSchema. Identifiers are not validated, so ".users" yields an empty
// schema and "users." an empty table; the catalog queries then match nothing.
func SplitTableName(name string) (schema, table string) {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return DefaultSchema, name
}

// ConstraintKindName maps a contype tag to its SQL name.
func ConstraintKindName(tag string) string {
	switch tag {
	case "p":
		return "PRIMARY KEY"
	case "f":
		return "FOREIGN KEY"
	case "u":
		return "UNIQUE"
	case "c":
		return "CHECK"
	case "x":
		return "EXCLUSION"
	case "t":
		return "TRIGGER"
	default:
		return tag
	}
}
