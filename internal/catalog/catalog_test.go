package catalog

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
	"github.com/johndauphine/pg2sqlite/internal/source"
)

// fakeIntrospector serves canned catalog rows.
type fakeIntrospector struct {
	relations []source.Relation
	columns   []source.ColumnInfo
	viewDefs  []source.ViewDefinition
	pks       []source.Constraint
	uniques   []source.Constraint
	fks       []source.Constraint
	usages    []source.Usage
	err       error
}

func (f *fakeIntrospector) Relations(context.Context, string) ([]source.Relation, error) {
	return f.relations, f.err
}

func (f *fakeIntrospector) Columns(_ context.Context, _ string, tables []string) ([]source.ColumnInfo, error) {
	return f.columns, nil
}

func (f *fakeIntrospector) ViewDefinitions(context.Context, []uint32) ([]source.ViewDefinition, error) {
	return f.viewDefs, nil
}

func (f *fakeIntrospector) PrimaryKeys(context.Context, string) ([]source.Constraint, error) {
	return f.pks, nil
}

func (f *fakeIntrospector) UniqueConstraints(context.Context, string) ([]source.Constraint, error) {
	return f.uniques, nil
}

func (f *fakeIntrospector) ForeignKeys(context.Context, string) ([]source.Constraint, error) {
	return f.fks, nil
}

func (f *fakeIntrospector) ViewUsages(context.Context, string) ([]source.Usage, error) {
	return f.usages, nil
}

func blogSchema() *fakeIntrospector {
	return &fakeIntrospector{
		relations: []source.Relation{
			{OID: 10, Name: "posts", Kind: "r", ApproxRows: 20},
			{OID: 11, Name: "users", Kind: "r", ApproxRows: 5},
			{OID: 12, Name: "recent_posts", Kind: "v"},
		},
		columns: []source.ColumnInfo{
			{Table: "posts", Name: "user_id", Type: "int4", Position: 2},
			{Table: "posts", Name: "id", Type: "int4", Position: 1},
			{Table: "users", Name: "id", Type: "int4", Position: 1},
			{Table: "users", Name: "email", Type: "varchar", Nullable: true, Position: 2},
			{Table: "posts", Name: "body", Type: "text", Nullable: true, Position: 3},
		},
		viewDefs: []source.ViewDefinition{
			{OID: 12, Name: "recent_posts", Definition: " SELECT posts.id\n   FROM posts;"},
		},
		pks: []source.Constraint{
			{Name: "users_pkey", Table: "users", Columns: []string{"id"}},
			{Name: "posts_pkey", Table: "posts", Columns: []string{"id"}},
		},
		uniques: []source.Constraint{
			{Name: "users_email_key", Table: "users", Columns: []string{"email"}},
		},
		fks: []source.Constraint{
			{Name: "posts_user_id_fkey", Table: "posts", Columns: []string{"user_id"},
				RefSchema: "public", RefTable: "users", RefColumns: []string{"id"}},
		},
		usages: []source.Usage{{Base: "posts", View: "recent_posts"}},
	}
}

func TestBuildOrdersReferencedTablesFirst(t *testing.T) {
	c, err := Build(context.Background(), blogSchema(), "public")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := []string{"users", "posts", "recent_posts"}
	if !reflect.DeepEqual(c.Order, want) {
		t.Errorf("Order = %v, want %v", c.Order, want)
	}

	posts := c.Tables["posts"]
	var cols []string
	for _, col := range posts.Columns {
		cols = append(cols, col.Name)
	}
	if !reflect.DeepEqual(cols, []string{"id", "user_id", "body"}) {
		t.Errorf("posts columns = %v, want ordinal order", cols)
	}
	if posts.PrimaryKey == nil || posts.PrimaryKey.Name != "posts_pkey" {
		t.Errorf("posts primary key = %+v", posts.PrimaryKey)
	}
	if len(c.ForeignKeys) != 1 || len(posts.ForeignKeys) != 1 {
		t.Errorf("expected one foreign key on posts, got %d", len(posts.ForeignKeys))
	}
	if len(c.Usages) != 1 || c.Usages[0] != (ViewUsage{Base: "posts", View: "recent_posts"}) {
		t.Errorf("Usages = %v", c.Usages)
	}
	if got := c.TotalApproxRows(); got != 25 {
		t.Errorf("TotalApproxRows = %d, want 25", got)
	}
}

func TestBuildNamespaceConflict(t *testing.T) {
	src := &fakeIntrospector{relations: []source.Relation{
		{OID: 1, Name: "foo", Kind: "r"},
		{OID: 2, Name: "foo", Kind: "v"},
	}}
	c, err := Build(context.Background(), src, "public")
	if c != nil {
		t.Error("no catalog should be returned on conflict")
	}
	if !migerr.Is(err, migerr.KindNamespaceConflict) {
		t.Fatalf("expected namespace conflict, got %v", err)
	}
}

func TestBuildUnsupportedKind(t *testing.T) {
	tests := []struct {
		name string
		kind string
	}{
		{"sequence", "S"},
		{"foreign table", "f"},
		{"composite type", "c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeIntrospector{relations: []source.Relation{{OID: 1, Name: "rel", Kind: tt.kind}}}
			c, err := Build(context.Background(), src, "public")
			if c != nil {
				t.Error("no catalog should be returned for an unsupported relation")
			}
			if !migerr.Is(err, migerr.KindIntrospection) {
				t.Fatalf("expected introspection error, got %v", err)
			}
			if !strings.Contains(err.Error(), `kind "`+tt.kind+`"`) {
				t.Errorf("error should name kind %q: %v", tt.kind, err)
			}
		})
	}
}

func TestBuildRejectsTablesWithoutColumns(t *testing.T) {
	src := blogSchema()
	src.relations = append(src.relations,
		source.Relation{OID: 20, Name: "empty_a", Kind: "r"},
		source.Relation{OID: 21, Name: "empty_b", Kind: "p"},
	)
	c, err := Build(context.Background(), src, "public")
	if c != nil {
		t.Error("no catalog should be returned for a table without columns")
	}
	if !migerr.Is(err, migerr.KindIntrospection) {
		t.Fatalf("expected introspection error, got %v", err)
	}
	var list migerr.List
	if !errors.As(err, &list) || len(list) != 2 {
		t.Fatalf("expected both empty tables batched, got %v", err)
	}
	for _, name := range []string{"public.empty_a", "public.empty_b"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}
}

func TestBuildSourceFailure(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := Build(context.Background(), &fakeIntrospector{err: boom}, "public")
	if !migerr.Is(err, migerr.KindIntrospection) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped introspection error, got %v", err)
	}
}

func TestBuildDanglingForeignKeys(t *testing.T) {
	src := &fakeIntrospector{
		relations: []source.Relation{{OID: 1, Name: "orders", Kind: "r"}},
		fks: []source.Constraint{
			{Name: "orders_customer_fkey", Table: "orders", Columns: []string{"customer_id"},
				RefSchema: "public", RefTable: "customers", RefColumns: []string{"id"}},
			{Name: "orders_region_fkey", Table: "orders", Columns: []string{"region_id"},
				RefSchema: "geo", RefTable: "regions", RefColumns: []string{"id"}},
		},
	}
	_, err := Build(context.Background(), src, "public")
	if !migerr.Is(err, migerr.KindDependencyIntegrity) {
		t.Fatalf("expected dependency integrity error, got %v", err)
	}
	var list migerr.List
	if !errors.As(err, &list) || len(list) != 2 {
		t.Fatalf("expected both dangling keys batched, got %v", err)
	}
	if !strings.Contains(err.Error(), "outside schema public") {
		t.Errorf("message should mention the cross-schema reference: %v", err)
	}
}

func TestBuildDuplicateForeignKeyName(t *testing.T) {
	src := &fakeIntrospector{
		relations: []source.Relation{{OID: 1, Name: "a", Kind: "r"}, {OID: 2, Name: "b", Kind: "r"}},
		fks: []source.Constraint{
			{Name: "fk", Table: "a", Columns: []string{"b_id"}, RefSchema: "public", RefTable: "b", RefColumns: []string{"id"}},
			{Name: "fk", Table: "b", Columns: []string{"a_id"}, RefSchema: "public", RefTable: "a", RefColumns: []string{"id"}},
		},
	}
	_, err := Build(context.Background(), src, "public")
	if !migerr.Is(err, migerr.KindNamespaceConflict) {
		t.Fatalf("expected namespace conflict, got %v", err)
	}
}

func TestBuildMutualForeignKeys(t *testing.T) {
	src := &fakeIntrospector{
		relations: []source.Relation{{OID: 1, Name: "a", Kind: "r"}, {OID: 2, Name: "b", Kind: "r"}},
		fks: []source.Constraint{
			{Name: "a_b_fkey", Table: "a", Columns: []string{"b_id"}, RefSchema: "public", RefTable: "b", RefColumns: []string{"id"}},
			{Name: "b_a_fkey", Table: "b", Columns: []string{"a_id"}, RefSchema: "public", RefTable: "a", RefColumns: []string{"id"}},
		},
	}
	c, err := Build(context.Background(), src, "public")
	if c != nil {
		t.Error("no catalog should be returned for a cycle")
	}
	if !migerr.Is(err, migerr.KindGraphCycle) {
		t.Fatalf("expected graph cycle error, got %v", err)
	}
}

func TestBuildSkipsForeignUsages(t *testing.T) {
	src := blogSchema()
	src.usages = append(src.usages, source.Usage{Base: "audit_log", View: "recent_posts"})
	c, err := Build(context.Background(), src, "public")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Usages) != 1 {
		t.Errorf("usage to an outside relation should be skipped, got %v", c.Usages)
	}
}

func TestTableDDL(t *testing.T) {
	c, err := Build(context.Background(), blogSchema(), "public")
	if err != nil {
		t.Fatal(err)
	}
	got, err := TableDDL(c.Tables["posts"])
	if err != nil {
		t.Fatal(err)
	}
	want := "CREATE TABLE posts (\n" +
		"  id INTEGER NOT NULL -- INT4\n" +
		"  , user_id INTEGER NOT NULL -- INT4\n" +
		"  , body TEXT -- TEXT\n" +
		"  , CONSTRAINT posts_pkey PRIMARY KEY (id)\n" +
		"  , CONSTRAINT posts_user_id_fkey FOREIGN KEY (user_id) REFERENCES users(id)\n" +
		"); -- ~ 20 rows\n"
	if got != want {
		t.Errorf("TableDDL =\n%s\nwant\n%s", got, want)
	}

	got, _ = TableDDL(c.Tables["users"])
	if !strings.Contains(got, "  , CONSTRAINT users_pkey PRIMARY KEY (id)\n  , CONSTRAINT users_email_key UNIQUE (email)\n") {
		t.Errorf("users DDL should list the primary key before uniques:\n%s", got)
	}
}

func TestTableDDLQuotesIdentifiers(t *testing.T) {
	tbl := &Table{Name: "Order", ApproxRows: -1, Columns: []Column{
		{Name: "group", Type: "int8"},
		{Name: "Note", Type: "text", Nullable: true},
	}}
	got, err := TableDDL(tbl)
	if err != nil {
		t.Fatal(err)
	}
	want := "CREATE TABLE \"Order\" (\n  \"group\" INTEGER NOT NULL -- INT8\n  , \"Note\" TEXT -- TEXT\n); -- ~ -1 rows\n"
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestTableStatementsTypeMapping(t *testing.T) {
	src := blogSchema()
	src.columns = append(src.columns,
		source.ColumnInfo{Table: "users", Name: "mood", Type: "mood_enum", Position: 3},
		source.ColumnInfo{Table: "posts", Name: "tags", Type: "_text", Position: 4},
	)
	c, err := Build(context.Background(), src, "public")
	if err != nil {
		t.Fatalf("catalog build should not map types: %v", err)
	}
	_, err = c.TableStatements()
	if !migerr.Is(err, migerr.KindTypeMapping) {
		t.Fatalf("expected type mapping error, got %v", err)
	}
	for _, col := range []string{"users.mood", "posts.tags"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error should name %s: %v", col, err)
		}
	}
}

func TestStatementsPutTablesBeforeViews(t *testing.T) {
	c, err := Build(context.Background(), blogSchema(), "public")
	if err != nil {
		t.Fatal(err)
	}
	tables, err := c.TableStatements()
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 || !strings.HasPrefix(tables[0], "CREATE TABLE users") {
		t.Errorf("unexpected table statements: %v", tables)
	}
	views := c.ViewStatements()
	want := "CREATE VIEW recent_posts AS\nSELECT posts.id\n   FROM posts;\n"
	if len(views) != 1 || views[0] != want {
		t.Errorf("ViewStatements = %q, want %q", views, want)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	c := New("public")
	c.Tables["foo"] = &Table{Name: "foo"}
	c.Views["foo"] = &View{Name: "foo"}
	c.ForeignKeys["foo_bar_fkey"] = &ForeignKey{Name: "foo_bar_fkey", Table: "foo", RefTable: "bar"}

	err := c.Validate()
	var list migerr.List
	if !errors.As(err, &list) || len(list) != 2 {
		t.Fatalf("expected two batched errors, got %v", err)
	}
	if !migerr.Is(err, migerr.KindNamespaceConflict) || !migerr.Is(err, migerr.KindDependencyIntegrity) {
		t.Errorf("both kinds should be present: %v", err)
	}
}

func TestCheckDisjoint(t *testing.T) {
	a := New("public")
	a.Tables["users"] = &Table{Name: "users"}
	b := New("billing")
	b.Tables["invoices"] = &Table{Name: "invoices"}

	if err := CheckDisjoint([]*Catalog{a, b}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	b.Views["users"] = &View{Name: "users"}
	err := CheckDisjoint([]*Catalog{a, b})
	if !migerr.Is(err, migerr.KindNamespaceConflict) {
		t.Fatalf("expected namespace conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "public and billing") {
		t.Errorf("message should name both schemas: %v", err)
	}
}
