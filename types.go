package pgmcp

import "github.com/rickchristie/pgguard-mcp/internal/catalog"

// IntrospectSchemaInput is the input for the introspect-schema tool.
// Empty Schemas means ["public"].
type IntrospectSchemaInput struct {
	Schemas []string `json:"schemas"`
}

// IntrospectSchemaOutput is the schema digest.
type IntrospectSchemaOutput struct {
	Tables     []catalog.TableDigest `json:"tables"`
	TableCount int                   `json:"table_count"`
	Note       string                `json:"note"`
	Orphans    *catalog.Orphans      `json:"orphans,omitempty"`
}

// ExecuteSQLInput is the input for the execute-sql tool.
type ExecuteSQLInput struct {
	SQL   string `json:"sql"`
	Limit int    `json:"limit"`
}

// ExecuteSQLOutput is the output of the execute-sql tool. For EXPLAIN
// statements Limit is 0 and Truncated is always false.
type ExecuteSQLOutput struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowCount     int                      `json:"row_count"`
	Truncated    bool                     `json:"truncated"`
	Limit        int                      `json:"limit,omitempty"`
	RowsAffected int64                    `json:"rows_affected"`
}

// TableDocumentInput is the input for the table-document tool. Table is
// "schema.table" or a bare table name in public.
type TableDocumentInput struct {
	Table string `json:"table"`
}

// ColumnDoc describes a single column.
type ColumnDoc struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Nullable  bool    `json:"nullable"`
	Default   *string `json:"default"`
	MaxLength *int32  `json:"max_length"`
	Comment   *string `json:"comment"`
}

// ConstraintDoc describes a single constraint.
type ConstraintDoc struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // PRIMARY KEY, FOREIGN KEY, UNIQUE, CHECK
	Definition string `json:"definition"`
}

// PolicyDoc describes a single row-level security policy.
type PolicyDoc struct {
	Name       string   `json:"name"`
	Command    string   `json:"command"`
	Roles      []string `json:"roles"`
	Permissive bool     `json:"permissive"`
	Using      *string  `json:"using"`
	WithCheck  *string  `json:"with_check"`
}

// IndexDoc describes a single index.
type IndexDoc struct {
	Name       string `json:"name"`
	Definition string `json:"definition"`
	IsUnique   bool   `json:"is_unique"`
	IsPrimary  bool   `json:"is_primary"`
}

// TableDocumentOutput is the detailed single-table document.
type TableDocumentOutput struct {
	Schema      string          `json:"schema"`
	Table       string          `json:"table"`
	Columns     []ColumnDoc     `json:"columns"`
	Constraints []ConstraintDoc `json:"constraints"`
	Policies    []PolicyDoc     `json:"policies"`
	Indexes     []IndexDoc      `json:"indexes"`
	HasRLS      bool            `json:"has_rls"`
}
