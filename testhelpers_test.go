//go:build integration

package pgmcp_test

import (
	"context"
	"os"
	"testing"

	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"

	pgmcp "github.com/rickchristie/pgguard-mcp"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Fatalf("Failed to acquire test database: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() pgmcp.Config {
	return pgmcp.Config{
		Pool: pgmcp.PoolConfig{MaxConns: 5},
	}
}

func newInstance(t *testing.T, connStr string, config pgmcp.Config) *pgmcp.PostgresMcp {
	t.Helper()
	ctx := context.Background()
	p, err := pgmcp.New(ctx, connStr, config, testLogger())
	if err != nil {
		t.Fatalf("Failed to create PostgresMcp: %v", err)
	}
	t.Cleanup(func() { p.Close(ctx) })
	return p
}

func newTestInstance(t *testing.T, config pgmcp.Config) (*pgmcp.PostgresMcp, string) {
	t.Helper()
	connStr := acquireTestDB(t)
	return newInstance(t, connStr, config), connStr
}

func setupTable(t *testing.T, p *pgmcp.PostgresMcp, sql string) {
	t.Helper()
	if _, err := p.ExecuteSQL(context.Background(), pgmcp.ExecuteSQLInput{SQL: sql}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
}

// newSafeTestInstance runs setupFn against a safe-mode-off instance, then
// returns a safe-mode instance on the same database.
func newSafeTestInstance(t *testing.T, config pgmcp.Config, setupFn func(t *testing.T, p *pgmcp.PostgresMcp)) *pgmcp.PostgresMcp {
	t.Helper()
	connStr := acquireTestDB(t)
	ctx := context.Background()

	setupP, err := pgmcp.New(ctx, connStr, defaultConfig(), testLogger())
	if err != nil {
		t.Fatalf("failed to create setup instance: %v", err)
	}
	setupFn(t, setupP)
	setupP.Close(ctx)

	config.SafeMode = true
	return newInstance(t, connStr, config)
}

var usersSchemaSQL = []string{
	`CREATE TABLE users (
		id uuid PRIMARY KEY,
		email text,
		name varchar(80) NOT NULL DEFAULT 'anon',
		CONSTRAINT users_email_key UNIQUE (email),
		CONSTRAINT users_name_check CHECK (length(name) > 0)
	)`,
	`COMMENT ON COLUMN users.email IS 'login address'`,
	`CREATE INDEX users_name_idx ON users (name)`,
	`ALTER TABLE users ENABLE ROW LEVEL SECURITY`,
	`CREATE POLICY own_rows ON users FOR SELECT TO PUBLIC USING (name = current_user)`,
	`CREATE TABLE orders (
		id bigserial PRIMARY KEY,
		user_id uuid NOT NULL REFERENCES users (id),
		total numeric(10,2)
	)`,
	`CREATE SCHEMA billing`,
	`CREATE TABLE billing.users (id int)`,
	`CREATE SEQUENCE ticket_seq`,
}

// setupUsersSchema creates users (with an index, constraints and an RLS
// policy), orders, billing.users and a sequence.
func setupUsersSchema(t *testing.T, p *pgmcp.PostgresMcp) {
	t.Helper()
	for _, sql := range usersSchemaSQL {
		setupTable(t, p, sql)
	}
}
