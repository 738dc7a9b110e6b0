package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersFixture() ([]ColumnRow, []IndexRow, []ConstraintRow, []PolicyRow) {
	cols := []ColumnRow{
		{Schema: "public", Table: "users", Name: "id", Type: "uuid", Nullable: false},
		{Schema: "public", Table: "users", Name: "email", Type: "text", Nullable: true},
		{Schema: "public", Table: "posts", Name: "id", Type: "bigint", Nullable: false},
	}
	idx := []IndexRow{
		{Schema: "public", Table: "users", Name: "users_pkey", Definition: "CREATE UNIQUE INDEX users_pkey ON public.users USING btree (id)"},
	}
	cons := []ConstraintRow{
		{Schema: "public", Table: "users", Name: "users_pkey", Kind: "p"},
	}
	pols := []PolicyRow{
		{Schema: "public", Table: "users", Name: "own_rows", Command: "SELECT"},
	}
	return cols, idx, cons, pols
}

func TestBuild_UsersScenario(t *testing.T) {
	t.Parallel()
	d := Build(usersFixture())

	require.Len(t, d.Tables, 2)
	users := d.Tables[0]
	assert.Equal(t, "public", users.Schema)
	assert.Equal(t, "users", users.Table)
	assert.Equal(t, []string{"id:uuid!", "email:text"}, users.Cols)
	assert.Equal(t, 1, users.IdxCount)
	assert.Equal(t, 1, users.ConsCount)
	assert.True(t, users.RLS)

	posts := d.Tables[1]
	assert.Equal(t, "posts", posts.Table)
	assert.Equal(t, []string{"id:bigint!"}, posts.Cols)
	assert.Zero(t, posts.IdxCount)
	assert.Zero(t, posts.ConsCount)
	assert.False(t, posts.RLS)

	assert.Zero(t, d.Orphans.Total())
}

func TestBuild_OrphanRowsDropped(t *testing.T) {
	t.Parallel()
	cols, idx, cons, pols := usersFixture()
	idx = append(idx, IndexRow{Schema: "public", Table: "ghost", Name: "ghost_idx"})
	cons = append(cons,
		ConstraintRow{Schema: "public", Table: "ghost", Name: "ghost_pkey", Kind: "p"},
		ConstraintRow{Schema: "other", Table: "users", Name: "other_users_pkey", Kind: "p"},
	)
	pols = append(pols, PolicyRow{Schema: "public", Table: "ghost", Name: "p", Command: "ALL"})

	d := Build(cols, idx, cons, pols)

	require.Len(t, d.Tables, 2)
	for _, tbl := range d.Tables {
		assert.NotEqual(t, "ghost", tbl.Table)
	}
	assert.Equal(t, 1, d.Tables[0].ConsCount, "other.users constraint must not attach to public.users")
	assert.Equal(t, Orphans{Indexes: 1, Constraints: 2, Policies: 1}, d.Orphans)
	assert.Equal(t, 4, d.Orphans.Total())
}

func TestBuild_Idempotent(t *testing.T) {
	t.Parallel()
	first := Build(usersFixture())
	second := Build(usersFixture())
	assert.Equal(t, first, second)
}

func TestBuild_SameTableNameInTwoSchemas(t *testing.T) {
	t.Parallel()
	cols := []ColumnRow{
		{Schema: "public", Table: "t", Name: "a", Type: "int", Nullable: true},
		{Schema: "audit", Table: "t", Name: "b", Type: "int", Nullable: true},
	}
	pols := []PolicyRow{{Schema: "audit", Table: "t", Name: "p", Command: "ALL"}}

	d := Build(cols, nil, nil, pols)
	require.Len(t, d.Tables, 2)
	assert.False(t, d.Tables[0].RLS)
	assert.True(t, d.Tables[1].RLS)
}

func TestBuild_Empty(t *testing.T) {
	t.Parallel()
	d := Build(nil, nil, nil, nil)
	assert.NotNil(t, d.Tables)
	assert.Empty(t, d.Tables)
}

func TestRenderColumn(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "id:uuid!", RenderColumn(ColumnRow{Name: "id", Type: "uuid"}))
	assert.Equal(t, "email:text", RenderColumn(ColumnRow{Name: "email", Type: "text", Nullable: true}))
	assert.Equal(t, "tags:ARRAY", RenderColumn(ColumnRow{Name: "tags", Type: "ARRAY", Nullable: true}))
}

func TestNormalizeSchemas(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"public"}, NormalizeSchemas(nil))
	assert.Equal(t, []string{"public"}, NormalizeSchemas([]string{"", "  "}))
	assert.Equal(t, []string{"auth", "public"}, NormalizeSchemas([]string{"auth", "public", "auth"}))
}

func TestSplitTableName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, schema, table string
	}{
		{"users", "public", "users"},
		{"auth.users", "auth", "users"},
		{"a.b.c", "a", "b.c"},
		{".users", "", "users"},
		{"users.", "users", ""},
		{".", "", ""},
	}
	for _, tt := range tests {
		schema, table := SplitTableName(tt.in)
		assert.Equal(t, tt.schema, schema, tt.in)
		assert.Equal(t, tt.table, table, tt.in)
	}
}

func TestConstraintKindName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "PRIMARY KEY", ConstraintKindName("p"))
	assert.Equal(t, "FOREIGN KEY", ConstraintKindName("f"))
	assert.Equal(t, "UNIQUE", ConstraintKindName("u"))
	assert.Equal(t, "CHECK", ConstraintKindName("c"))
	assert.Equal(t, "?", ConstraintKindName("?"))
}
