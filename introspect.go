package pgmcp

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/rickchristie/pgguard-mcp/internal/catalog"
	"github.com/rickchristie/pgguard-mcp/internal/timeout"
)

// DigestNote is attached to every introspect-schema result.
const DigestNote = "Compact digest: cols are name:type with ! marking NOT NULL. Call table-document for defaults, constraint definitions and RLS policy predicates."

const introspectColumnsSQL = `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES'
FROM information_schema.columns c
WHERE c.table_schema = ANY($1)
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

const introspectIndexesSQL = `
SELECT schemaname, tablename, indexname, indexdef
FROM pg_indexes
WHERE schemaname = ANY($1)`

const introspectConstraintsSQL = `
SELECT n.nspname, t.relname, con.conname, con.contype::text
FROM pg_constraint con
JOIN pg_class t ON t.oid = con.conrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = ANY($1)
  AND con.contype IN ('p', 'f', 'u', 'c')`

const introspectPoliciesSQL = `
SELECT schemaname, tablename, policyname, cmd
FROM pg_policies
WHERE schemaname = ANY($1)`

// IntrospectSchema returns a compact digest of every table in the requested
// schemas. The four catalog queries run concurrently; any failure aborts the
// whole call.
func (p *PostgresMcp) IntrospectSchema(ctx context.Context, input IntrospectSchemaInput) (*IntrospectSchemaOutput, error) {
	startTime := time.Now()
	if !p.FeatureEnabled(FeatureIntrospectSchema) {
		return nil, p.handleError(FeatureIntrospectSchema, errFeatureDisabled(FeatureIntrospectSchema))
	}
	schemas := catalog.NormalizeSchemas(input.Schemas)

	release, err := p.acquireSlot(ctx)
	if err != nil {
		return nil, p.handleError(FeatureIntrospectSchema, err)
	}
	defer release()

	ctx, cancel := timeout.WithTimeout(ctx, time.Duration(p.config.Query.IntrospectTimeoutSeconds)*time.Second)
	defer cancel()

	var (
		cols        []catalog.ColumnRow
		indexes     []catalog.IndexRow
		constraints []catalog.ConstraintRow
		policies    []catalog.PolicyRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cols, err = fetchCatalog[catalog.ColumnRow](gctx, p, introspectColumnsSQL, schemas)
		return err
	})
	g.Go(func() (err error) {
		indexes, err = fetchCatalog[catalog.IndexRow](gctx, p, introspectIndexesSQL, schemas)
		return err
	})
	g.Go(func() (err error) {
		constraints, err = fetchCatalog[catalog.ConstraintRow](gctx, p, introspectConstraintsSQL, schemas)
		return err
	})
	g.Go(func() (err error) {
		policies, err = fetchCatalog[catalog.PolicyRow](gctx, p, introspectPoliciesSQL, schemas)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, p.handleError(FeatureIntrospectSchema, err)
	}

	output := p.buildDigest(cols, indexes, constraints, policies)
	p.logger.Info().
		Strs("schemas", schemas).
		Int("table_count", output.TableCount).
		Dur("duration", time.Since(startTime)).
		Msg("schema introspected")
	return output, nil
}

// buildDigest aggregates catalog rows into the tool output.
func (p *PostgresMcp) buildDigest(cols []catalog.ColumnRow, indexes []catalog.IndexRow, constraints []catalog.ConstraintRow, policies []catalog.PolicyRow) *IntrospectSchemaOutput {
	digest := catalog.Build(cols, indexes, constraints, policies)
	output := &IntrospectSchemaOutput{
		Tables:     digest.Tables,
		TableCount: len(digest.Tables),
		Note:       DigestNote,
	}
	if digest.Orphans.Total() > 0 {
		orphans := digest.Orphans
		output.Orphans = &orphans
		p.logger.Debug().
			Int("orphan_indexes", orphans.Indexes).
			Int("orphan_constraints", orphans.Constraints).
			Int("orphan_policies", orphans.Policies).
			Msg("catalog rows without a matching column row")
	}
	return output
}

// fetchCatalog runs one catalog query on its own pooled connection and scans
// each row positionally into T.
func fetchCatalog[T any](ctx context.Context, p *PostgresMcp, sql string, args ...any) ([]T, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[T])
}
