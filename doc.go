// Package pgmcp exposes guarded PostgreSQL access to AI agents through the
// Model Context Protocol (MCP).
//
// Three tools are provided: introspect-schema (a compact digest of every
// table in the requested schemas), execute-sql (a single statement with a
// bounded row count) and table-document (columns, constraints, RLS policies
// and indexes for one table).
//
// In safe mode execute-sql rejects any statement containing a mutating
// keyword (INSERT, DROP, SET ROLE, ...) anywhere in its text unless it is an
// EXPLAIN, and runs what it accepts inside a READ ONLY transaction. The
// keyword check is a heuristic, not a parser: keywords inside string literals
// and comments are rejected too. With safe mode off statements run in
// autocommit on a pooled connection, limited only by the role's grants.
//
// # Library Usage
//
//	p, err := pgmcp.New(ctx, connString, pgmcp.Config{
//		Pool:     pgmcp.PoolConfig{MaxConns: 10},
//		SafeMode: true,
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	// Use directly
//	out, err := p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "SELECT * FROM users", Limit: 10})
//	if pgmcp.IsSafetyDenied(err) {
//		// ...
//	}
//
//	// Or register as MCP tools
//	pgmcp.RegisterMCPTools(mcpServer, p)
//
// Every engine method returns an *[Error] whose Kind tells callers what
// went wrong. Over MCP, errors are returned as tool results with IsError set.
package pgmcp
