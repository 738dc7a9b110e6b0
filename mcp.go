package pgmcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers introspect-schema, execute-sql and
// table-document on the given MCP server. Disabled tools are still
// registered and answer with a feature disabled error.
func RegisterMCPTools(mcpServer *server.MCPServer, pgMcp *PostgresMcp) {
	introspectTool := mcp.NewTool(FeatureIntrospectSchema,
		mcp.WithDescription("Return a compact digest of every table in the given schemas: columns as name:type (! marks NOT NULL), index and constraint counts, and whether RLS policies exist."),
		mcp.WithArray("schemas",
			mcp.Description("Schemas to include (defaults to [\"public\"])"),
			mcp.WithStringItems(),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(introspectTool, pgMcp.loggedToolHandler(FeatureIntrospectSchema, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schemas := req.GetStringSlice("schemas", nil)
		output, err := pgMcp.IntrospectSchema(ctx, IntrospectSchemaInput{Schemas: schemas})
		return toolResult(output, err)
	}))

	executeTool := mcp.NewTool(FeatureExecuteSQL,
		mcp.WithDescription("Execute a single SQL statement. Results are capped at limit rows (default 100, max 1000); truncated reports whether more rows existed. In safe mode only read-only statements and EXPLAIN are allowed."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL statement to execute"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum rows to return (default 100, max 1000)"),
		),
	)

	mcpServer.AddTool(executeTool, pgMcp.loggedToolHandler(FeatureExecuteSQL, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		limit := req.GetInt("limit", 0)
		output, err := pgMcp.ExecuteSQL(ctx, ExecuteSQLInput{SQL: sql, Limit: limit})
		return toolResult(output, err)
	}))

	documentTool := mcp.NewTool(FeatureTableDocument,
		mcp.WithDescription("Describe one table in detail: columns with defaults and comments, constraint definitions, RLS policies with their USING and WITH CHECK predicates, and indexes."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table as schema.table, or a bare name in the public schema"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(documentTool, pgMcp.loggedToolHandler(FeatureTableDocument, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		output, err := pgMcp.TableDocument(ctx, TableDocumentInput{Table: table})
		return toolResult(output, err)
	}))
}

// toolResult renders an engine result. Engine errors become tool errors so
// the client sees the message; they are never protocol errors.
func toolResult(output any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		return mcp.NewToolResultError("failed to marshal result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (p *PostgresMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID := uuid.NewString()
		startTime := time.Now()
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		p.logger.Info().
			Str("tool", tool).
			Str("call_id", callID).
			Int("request_bytes", reqLen).
			Int("response_bytes", resultLength(result)).
			Bool("is_error", result != nil && result.IsError).
			Dur("duration", time.Since(startTime)).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
