//go:build integration

package pgmcp_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgmcp "github.com/rickchristie/pgguard-mcp"
	"github.com/rickchristie/pgguard-mcp/internal/catalog"
)

func tableByName(t *testing.T, out *pgmcp.IntrospectSchemaOutput, schema, table string) catalog.TableDigest {
	t.Helper()
	for _, d := range out.Tables {
		if d.Schema == schema && d.Table == table {
			return d
		}
	}
	t.Fatalf("table %s.%s not in digest", schema, table)
	return catalog.TableDigest{}
}

func TestIntrospectSchema_DefaultPublic(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	out, err := p.IntrospectSchema(context.Background(), pgmcp.IntrospectSchemaInput{})
	require.NoError(t, err)
	require.Equal(t, 2, out.TableCount)
	assert.Equal(t, pgmcp.DigestNote, out.Note)
	assert.Nil(t, out.Orphans)

	// Columns query orders by schema then table.
	assert.Equal(t, "orders", out.Tables[0].Table)
	assert.Equal(t, "users", out.Tables[1].Table)

	users := tableByName(t, out, "public", "users")
	assert.Equal(t, []string{"id:uuid!", "email:text", "name:character varying!"}, users.Cols)
	assert.Equal(t, 3, users.IdxCount)
	assert.Equal(t, 3, users.ConsCount)
	assert.True(t, users.RLS)

	orders := tableByName(t, out, "public", "orders")
	assert.Equal(t, []string{"id:bigint!", "user_id:uuid!", "total:numeric"}, orders.Cols)
	assert.Equal(t, 1, orders.IdxCount)
	assert.Equal(t, 2, orders.ConsCount)
	assert.False(t, orders.RLS)
}

func TestIntrospectSchema_MultipleSchemasKeepTablesApart(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	out, err := p.IntrospectSchema(context.Background(), pgmcp.IntrospectSchemaInput{
		Schemas: []string{"public", "billing", "public", " "},
	})
	require.NoError(t, err)
	require.Equal(t, 3, out.TableCount)

	billing := tableByName(t, out, "billing", "users")
	assert.Equal(t, []string{"id:integer"}, billing.Cols)
	assert.Equal(t, 0, billing.IdxCount)
	assert.False(t, billing.RLS)
	assert.True(t, tableByName(t, out, "public", "users").RLS)
}

func TestIntrospectSchema_UnknownSchemaIsEmpty(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())

	out, err := p.IntrospectSchema(context.Background(), pgmcp.IntrospectSchemaInput{Schemas: []string{"nope"}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.TableCount)
	assert.NotNil(t, out.Tables)
}

func TestExecuteSQL_RowLimit(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())
	ctx := context.Background()
	sql := "SELECT g FROM generate_series(1, 1500) g"

	out, err := p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: sql})
	require.NoError(t, err)
	assert.Equal(t, 100, out.RowCount)
	assert.Equal(t, 100, out.Limit)
	assert.True(t, out.Truncated)

	out, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: sql, Limit: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1000, out.RowCount)
	assert.True(t, out.Truncated)

	out, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "SELECT 1 AS one", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, out.RowCount)
	assert.False(t, out.Truncated)
	assert.Equal(t, []string{"one"}, out.Columns)
}

func TestExecuteSQL_ExplainIsNotCapped(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	out, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{
		SQL:   "EXPLAIN SELECT * FROM users u JOIN orders o ON o.user_id = u.id WHERE u.email = 'a@b.c'",
		Limit: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Limit)
	assert.False(t, out.Truncated)
	assert.Greater(t, out.RowCount, 1)
	assert.Equal(t, []string{"QUERY PLAN"}, out.Columns)
}

func TestExecuteSQL_SafeModeRunsReadOnlyTransaction(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	// nextval is not a deny-listed keyword, so only the READ ONLY transaction stops it.
	_, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{SQL: "SELECT nextval('ticket_seq')"})
	require.Error(t, err)
	assert.True(t, pgmcp.IsDataAccess(err))
	assert.Contains(t, err.Error(), "read-only transaction")

	_, err = p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{SQL: "DELETE FROM users"})
	assert.True(t, pgmcp.IsSafetyDenied(err))
}

func TestExecuteSQL_WritesCommitWhenSafeModeOff(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())
	ctx := context.Background()
	setupTable(t, p, "CREATE TABLE notes (id int, body text)")

	out, err := p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "INSERT INTO notes VALUES (1, 'a'), (2, 'b')"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.RowsAffected)

	out, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "SELECT count(*) AS n FROM notes"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Rows[0]["n"])
}

func TestExecuteSQL_SelectWritesPersistWhenSafeModeOff(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())
	ctx := context.Background()
	setupTable(t, p, "CREATE TABLE notes (id int, body text)")
	setupTable(t, p, "INSERT INTO notes VALUES (1, 'a'), (2, 'b'), (3, 'c')")
	setupTable(t, p, "CREATE SEQUENCE note_seq")

	out, err := p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "WITH d AS (DELETE FROM notes WHERE id = 1 RETURNING *) SELECT * FROM d"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.RowCount)

	_, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "SELECT * INTO notes_copy FROM notes"})
	require.NoError(t, err)

	_, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "SELECT setval('note_seq', 42)"})
	require.NoError(t, err)

	out, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{
		SQL: "SELECT (SELECT count(*) FROM notes) AS notes, (SELECT count(*) FROM notes_copy) AS copies, (SELECT last_value FROM note_seq) AS seq",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Rows[0]["notes"])
	assert.Equal(t, int64(2), out.Rows[0]["copies"])
	assert.Equal(t, int64(42), out.Rows[0]["seq"])
}

func TestExecuteSQL_VacuumRunsOutsideTransactionWhenSafeModeOff(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())
	ctx := context.Background()
	setupTable(t, p, "CREATE TABLE notes (id int)")

	_, err := p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "VACUUM notes"})
	require.NoError(t, err)

	_, err = p.ExecuteSQL(ctx, pgmcp.ExecuteSQLInput{SQL: "CREATE INDEX CONCURRENTLY notes_id_idx ON notes (id)"})
	require.NoError(t, err)
}

func TestExecuteSQL_DataAccessErrorKeepsMessage(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())

	_, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{SQL: "SELECT * FROM missing_table"})
	require.Error(t, err)
	assert.True(t, pgmcp.IsDataAccess(err))
	assert.Contains(t, err.Error(), `relation "missing_table" does not exist`)

	var e *pgmcp.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "42P01", e.Code)
}

func TestExecuteSQL_TimeoutRule(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Query.TimeoutRules = []pgmcp.TimeoutRule{{Pattern: `(?i)pg_sleep`, TimeoutSeconds: 1}}
	p, _ := newTestInstance(t, config)

	_, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{SQL: "SELECT pg_sleep(5)"})
	require.Error(t, err)
	assert.True(t, pgmcp.IsTimeout(err), "got %v", err)
}

func TestExecuteSQL_SanitizationIsColumnScoped(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Sanitization = []pgmcp.SanitizationRule{
		{Pattern: `^[^@]+@`, Replacement: "***@", Column: "email"},
	}
	p, _ := newTestInstance(t, config)

	out, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{
		SQL: "SELECT 'alice@example.com' AS email, 'bob@example.com' AS note",
	})
	require.NoError(t, err)
	assert.Equal(t, "***@example.com", out.Rows[0]["email"])
	assert.Equal(t, "bob@example.com", out.Rows[0]["note"])
}

func TestExecuteSQL_Timezone(t *testing.T) {
	t.Parallel()
	config := defaultConfig()
	config.Timezone = "Asia/Jakarta"
	p, _ := newTestInstance(t, config)

	out, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{SQL: "SELECT current_setting('TimeZone') AS tz"})
	require.NoError(t, err)
	assert.Equal(t, "Asia/Jakarta", out.Rows[0]["tz"])
}

func TestTableDocument_Users(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	doc, err := p.TableDocument(context.Background(), pgmcp.TableDocumentInput{Table: "users"})
	require.NoError(t, err)
	assert.Equal(t, "public", doc.Schema)
	assert.Equal(t, "users", doc.Table)
	assert.True(t, doc.HasRLS)

	require.Len(t, doc.Columns, 3)
	assert.Equal(t, "id", doc.Columns[0].Name)
	assert.False(t, doc.Columns[0].Nullable)
	require.NotNil(t, doc.Columns[1].Comment)
	assert.Equal(t, "login address", *doc.Columns[1].Comment)
	require.NotNil(t, doc.Columns[2].Default)
	assert.Contains(t, *doc.Columns[2].Default, "anon")
	require.NotNil(t, doc.Columns[2].MaxLength)
	assert.Equal(t, int32(80), *doc.Columns[2].MaxLength)

	types := map[string]string{}
	for _, c := range doc.Constraints {
		types[c.Name] = c.Type
	}
	assert.Equal(t, "PRIMARY KEY", types["users_pkey"])
	assert.Equal(t, "UNIQUE", types["users_email_key"])
	assert.Equal(t, "CHECK", types["users_name_check"])

	require.Len(t, doc.Policies, 1)
	pol := doc.Policies[0]
	assert.Equal(t, "own_rows", pol.Name)
	assert.Equal(t, "SELECT", pol.Command)
	assert.True(t, pol.Permissive)
	assert.Equal(t, []string{"public"}, pol.Roles)
	require.NotNil(t, pol.Using)
	assert.Contains(t, *pol.Using, "CURRENT_USER")
	assert.Nil(t, pol.WithCheck)

	assert.Len(t, doc.Indexes, 3)
}

func TestTableDocument_SchemaQualified(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	doc, err := p.TableDocument(context.Background(), pgmcp.TableDocumentInput{Table: "billing.users"})
	require.NoError(t, err)
	assert.Equal(t, "billing", doc.Schema)
	require.Len(t, doc.Columns, 1)
	assert.False(t, doc.HasRLS)

	b, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"policies":[]`)
	assert.Contains(t, string(b), `"constraints":[]`)
}

func TestTableDocument_MissingTableIsEmpty(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())

	doc, err := p.TableDocument(context.Background(), pgmcp.TableDocumentInput{Table: "public.nope"})
	require.NoError(t, err)
	assert.Empty(t, doc.Columns)
	assert.NotNil(t, doc.Columns)
	assert.False(t, doc.HasRLS)
}

func TestPing(t *testing.T) {
	t.Parallel()
	p, _ := newTestInstance(t, defaultConfig())
	require.NoError(t, p.Ping(context.Background()))
}

func TestMCPOverHTTP(t *testing.T) {
	t.Parallel()
	p := newSafeTestInstance(t, defaultConfig(), setupUsersSchema)

	mcpServer := server.NewMCPServer("pgguardmcp-test", "1.0.0", server.WithToolCapabilities(true))
	pgmcp.RegisterMCPTools(mcpServer, p)
	httpSrv := httptest.NewServer(server.NewStreamableHTTPServer(mcpServer, server.WithStateLess(true)))
	t.Cleanup(httpSrv.Close)

	call := func(body string) map[string]interface{} {
		resp, err := http.Post(httpSrv.URL, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
		var out map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
		return out
	}

	out := call(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"introspect-schema","arguments":{"schemas":["public"]}}}`)
	result := out["result"].(map[string]interface{})
	assert.NotEqual(t, true, result["isError"])
	text := result["content"].([]interface{})[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, `"table_count":2`)

	out = call(`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"execute-sql","arguments":{"sql":"UPDATE users SET name = 'x'"}}}`)
	result = out["result"].(map[string]interface{})
	assert.Equal(t, true, result["isError"])
}
