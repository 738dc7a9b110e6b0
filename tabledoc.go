package pgmcp

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickchristie/pgguard-mcp/internal/catalog"
	"github.com/rickchristie/pgguard-mcp/internal/timeout"
)

const docColumnsSQL = `
SELECT c.column_name,
       c.data_type,
       c.is_nullable = 'YES',
       c.column_default,
       c.character_maximum_length::int4,
       col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position::int)
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

const docConstraintsSQL = `
SELECT con.conname, con.contype::text, pg_get_constraintdef(con.oid)
FROM pg_constraint con
JOIN pg_class t ON t.oid = con.conrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = $1 AND t.relname = $2
ORDER BY con.conname`

const docPoliciesSQL = `
SELECT policyname, cmd, roles::text[], permissive = 'PERMISSIVE', qual, with_check
FROM pg_policies
WHERE schemaname = $1 AND tablename = $2
ORDER BY policyname`

const docIndexesSQL = `
SELECT i.relname, pg_get_indexdef(ix.indexrelid), ix.indisunique, ix.indisprimary
FROM pg_index ix
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = $1 AND t.relname = $2
ORDER BY i.relname`

// TableDocument returns the detailed document for one table. A table that
// does not exist (or is not visible) yields an empty document.
func (p *PostgresMcp) TableDocument(ctx context.Context, input TableDocumentInput) (*TableDocumentOutput, error) {
	startTime := time.Now()
	if !p.FeatureEnabled(FeatureTableDocument) {
		return nil, p.handleError(FeatureTableDocument, errFeatureDisabled(FeatureTableDocument))
	}
	if input.Table == "" {
		return nil, p.handleError(FeatureTableDocument, newError(ErrKindInvalidInput, "table must be a non-empty string"))
	}
	schema, table := catalog.SplitTableName(input.Table)

	release, err := p.acquireSlot(ctx)
	if err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	defer release()

	queryCtx, cancel := timeout.WithTimeout(ctx, time.Duration(p.config.Query.DocumentTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := p.pool.Acquire(queryCtx)
	if err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	defer tx.Rollback(ctx)

	output := &TableDocumentOutput{Schema: schema, Table: table}
	if output.Columns, err = queryDoc(queryCtx, tx, docColumnsSQL, schema, table, scanColumnDoc); err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	if output.Constraints, err = queryDoc(queryCtx, tx, docConstraintsSQL, schema, table, scanConstraintDoc); err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	if output.Policies, err = queryDoc(queryCtx, tx, docPoliciesSQL, schema, table, scanPolicyDoc); err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	if output.Indexes, err = queryDoc(queryCtx, tx, docIndexesSQL, schema, table, scanIndexDoc); err != nil {
		return nil, p.handleError(FeatureTableDocument, err)
	}
	output.HasRLS = len(output.Policies) > 0

	p.logger.Info().
		Str("schema", schema).
		Str("table", table).
		Int("column_count", len(output.Columns)).
		Dur("duration", time.Since(startTime)).
		Msg("table documented")
	return output, nil
}

// queryDoc runs one per-table query inside tx. The result is never nil.
func queryDoc[T any](ctx context.Context, tx pgx.Tx, sql, schema, table string, scan pgx.RowToFunc[T]) ([]T, error) {
	rows, err := tx.Query(ctx, sql, schema, table)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func scanColumnDoc(row pgx.CollectableRow) (ColumnDoc, error) {
	var c ColumnDoc
	err := row.Scan(&c.Name, &c.Type, &c.Nullable, &c.Default, &c.MaxLength, &c.Comment)
	return c, err
}

func scanConstraintDoc(row pgx.CollectableRow) (ConstraintDoc, error) {
	var c ConstraintDoc
	var tag string
	if err := row.Scan(&c.Name, &tag, &c.Definition); err != nil {
		return c, err
	}
	c.Type = catalog.ConstraintKindName(tag)
	return c, nil
}

func scanPolicyDoc(row pgx.CollectableRow) (PolicyDoc, error) {
	var pd PolicyDoc
	err := row.Scan(&pd.Name, &pd.Command, &pd.Roles, &pd.Permissive, &pd.Using, &pd.WithCheck)
	if pd.Roles == nil {
		pd.Roles = []string{}
	}
	return pd, err
}

func scanIndexDoc(row pgx.CollectableRow) (IndexDoc, error) {
	var ix IndexDoc
	err := row.Scan(&ix.Name, &ix.Definition, &ix.IsUnique, &ix.IsPrimary)
	return ix, err
}
