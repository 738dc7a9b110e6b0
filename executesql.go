package pgmcp

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/rickchristie/pgguard-mcp/internal/sqlguard"
	"github.com/rickchristie/pgguard-mcp/internal/timeout"
)

// ExecuteSQL runs one statement through the guard and returns at most limit
// rows. A statement the guard denies never reaches the pool.
func (p *PostgresMcp) ExecuteSQL(ctx context.Context, input ExecuteSQLInput) (*ExecuteSQLOutput, error) {
	startTime := time.Now()
	sql := input.SQL

	if !p.FeatureEnabled(FeatureExecuteSQL) {
		return nil, p.handleError(FeatureExecuteSQL, errFeatureDisabled(FeatureExecuteSQL))
	}
	if strings.TrimSpace(sql) == "" {
		return nil, p.handleError(FeatureExecuteSQL, newError(ErrKindInvalidInput, "sql must be a non-empty string"))
	}
	if len(sql) > p.config.Query.MaxSQLLength {
		return nil, p.handleError(FeatureExecuteSQL, newError(ErrKindInvalidInput,
			"SQL query too long: %d bytes exceeds maximum of %d bytes", len(sql), p.config.Query.MaxSQLLength))
	}
	if err := p.guard.Check(sql); err != nil {
		return nil, p.handleError(FeatureExecuteSQL, err)
	}

	explain := sqlguard.IsExplain(sql)
	limit := 0
	if !explain {
		limit = p.clampLimit(input.Limit)
	}

	release, err := p.acquireSlot(ctx)
	if err != nil {
		return nil, p.handleError(FeatureExecuteSQL, err)
	}
	defer release()

	d, timeoutRule := p.timeoutMgr.Resolve(sql)
	queryCtx, cancel := timeout.WithTimeout(ctx, d)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return nil, p.handleError(FeatureExecuteSQL, err)
	}
	defer conn.Release()

	var rows pgx.Rows
	if p.guard.SafeMode {
		tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
		if err != nil {
			return nil, p.handleError(FeatureExecuteSQL, err)
		}
		defer tx.Rollback(ctx) // parent ctx: queryCtx may already be cancelled
		rows, err = tx.Query(queryCtx, sql)
		if err != nil {
			return nil, p.handleError(FeatureExecuteSQL, err)
		}
	} else {
		// Autocommit. VACUUM, CREATE INDEX CONCURRENTLY and friends refuse to
		// run inside a transaction block.
		rows, err = conn.Query(queryCtx, sql)
		if err != nil {
			return nil, p.handleError(FeatureExecuteSQL, err)
		}
	}
	output, err := collectRows(rows, limit)
	if err != nil {
		return nil, p.handleError(FeatureExecuteSQL, err)
	}

	sanitized := p.sanitizer.HasRules()
	output.Rows = p.sanitizer.SanitizeRows(output.Rows)

	logEvent := p.logger.Info().
		Str("sql", truncateForLog(sql, 200)).
		Dur("duration", time.Since(startTime)).
		Int("row_count", output.RowCount).
		Bool("truncated", output.Truncated).
		Int64("rows_affected", output.RowsAffected).
		Bool("read_only", isReadOnlyStatement(sql))
	if fp, err := pg_query.Fingerprint(sql); err == nil {
		logEvent = logEvent.Str("fingerprint", fp)
	}
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("sql executed")

	return output, nil
}

// clampLimit resolves the requested row limit: non-positive means the
// default, anything above the configured max is capped.
func (p *PostgresMcp) clampLimit(requested int) int {
	if requested <= 0 {
		return p.config.Query.DefaultRowLimit
	}
	if requested > p.config.Query.MaxRowLimit {
		return p.config.Query.MaxRowLimit
	}
	return requested
}

// writeMarkers are parse tree nodes that let a SELECT write or lock:
// SELECT INTO, data-modifying CTEs, row locks and function calls (setval,
// nextval, any volatile user function).
var writeMarkers = []string{
	`"intoClause"`,
	`"lockingClause"`,
	`"InsertStmt"`,
	`"UpdateStmt"`,
	`"DeleteStmt"`,
	`"MergeStmt"`,
	`"FuncCall"`,
}

// isReadOnlyStatement reports whether every statement in sql is a plain
// read that cannot change data. Unparseable SQL counts as a write. The
// result is logged; execution never depends on it.
func isReadOnlyStatement(sql string) bool {
	result, err := pg_query.Parse(sql)
	if err != nil || len(result.Stmts) == 0 {
		return false
	}
	for _, raw := range result.Stmts {
		switch raw.Stmt.Node.(type) {
		case *pg_query.Node_SelectStmt,
			*pg_query.Node_ExplainStmt,
			*pg_query.Node_VariableShowStmt:
		default:
			return false
		}
	}
	tree, err := pg_query.ParseToJSON(sql)
	if err != nil {
		return false
	}
	for _, marker := range writeMarkers {
		if strings.Contains(tree, marker) {
			return false
		}
	}
	return true
}

// rowSource is the subset of pgx.Rows that collectRows reads.
type rowSource interface {
	FieldDescriptions() []pgconn.FieldDescription
	Next() bool
	Values() ([]any, error)
	Err() error
	CommandTag() pgconn.CommandTag
	Close()
}

// collectRows reads up to limit rows (0 means all). One extra row is read to
// decide whether the result was truncated.
func collectRows(rows rowSource, limit int) (*ExecuteSQLOutput, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	output := &ExecuteSQLOutput{
		Columns: columns,
		Rows:    make([]map[string]interface{}, 0),
		Limit:   limit,
	}
	for rows.Next() {
		if limit > 0 && len(output.Rows) == limit {
			output.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		output.Rows = append(output.Rows, row)
	}
	// Close drains the remaining rows so the command tag is complete.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	output.RowCount = len(output.Rows)
	output.RowsAffected = rows.CommandTag().RowsAffected()
	return output, nil
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
