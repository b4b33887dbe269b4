package depgraph

import (
	"errors"
	"reflect"
	"testing"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestLoadOrderUsersPosts(t *testing.T) {
	g, err := Build(
		[]string{"Posts", "Users"},
		nil,
		[]Dependency{{From: "Posts", To: "Users", Label: "posts_user_id_fkey"}},
		nil,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	order, err := g.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	want := []string{"Users", "Posts"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("got %v, want %v", order, want)
	}
}

func TestTopologicalSortFollowsEdges(t *testing.T) {
	g, err := Build(
		[]string{"a", "b", "c"},
		nil,
		[]Dependency{{From: "a", To: "b"}, {From: "b", To: "c"}},
		nil,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	raw, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort: %v", err)
	}
	if !reflect.DeepEqual(raw, []string{"a", "b", "c"}) {
		t.Errorf("raw sort = %v, want owner before referenced", raw)
	}

	load, err := g.LoadOrder()
	if err != nil {
		t.Fatalf("LoadOrder: %v", err)
	}
	if !reflect.DeepEqual(load, []string{"c", "b", "a"}) {
		t.Errorf("load order = %v, want referenced before owner", load)
	}
}

func TestLoadOrderRespectsEveryEdge(t *testing.T) {
	tables := []string{"accounts", "invoices", "line_items", "products", "regions", "users"}
	views := []string{"invoice_totals", "top_accounts"}
	fks := []Dependency{
		{From: "accounts", To: "regions"},
		{From: "users", To: "accounts"},
		{From: "invoices", To: "accounts"},
		{From: "invoices", To: "users"},
		{From: "line_items", To: "invoices"},
		{From: "line_items", To: "products"},
		{From: "line_items", To: "products", Label: "parallel"},
	}
	usages := []Dependency{
		{From: "invoices", To: "invoice_totals"},
		{From: "line_items", To: "invoice_totals"},
		{From: "invoice_totals", To: "top_accounts"},
		{From: "accounts", To: "top_accounts"},
	}

	g, err := Build(tables, views, fks, usages)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	order, err := g.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if len(order) != len(tables)+len(views) {
		t.Fatalf("order has %d relations, want %d", len(order), len(tables)+len(views))
	}

	for _, fk := range fks {
		if indexOf(order, fk.To) > indexOf(order, fk.From) {
			t.Errorf("referenced %s placed after owner %s in %v", fk.To, fk.From, order)
		}
	}
	for _, u := range usages {
		if indexOf(order, u.From) > indexOf(order, u.To) {
			t.Errorf("base %s placed after view %s in %v", u.From, u.To, order)
		}
	}
}

func TestOrderIsDeterministic(t *testing.T) {
	build := func() []string {
		g, err := Build([]string{"z", "m", "a", "k"}, []string{"v"}, nil, []Dependency{{From: "k", To: "v"}})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		order, err := g.Order()
		if err != nil {
			t.Fatalf("Order: %v", err)
		}
		return order
	}

	first := build()
	for i := 0; i < 10; i++ {
		if got := build(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d: got %v, want %v", i, got, first)
		}
	}
	if !reflect.DeepEqual(first, []string{"a", "k", "m", "v", "z"}) {
		t.Errorf("got %v, want name order among independent relations", first)
	}
}

func TestMutualForeignKeysCycle(t *testing.T) {
	g, err := Build(
		[]string{"A", "B", "C"},
		nil,
		[]Dependency{{From: "A", To: "B"}, {From: "B", To: "A"}},
		nil,
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	order, err := g.Order()
	if order != nil {
		t.Errorf("expected no partial order, got %v", order)
	}
	if !migerr.Is(err, migerr.KindGraphCycle) {
		t.Fatalf("got %v, want graph cycle error", err)
	}
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected *CycleError in chain, got %T", err)
	}
	if !reflect.DeepEqual(cycle.Relations, []string{"A", "B"}) {
		t.Errorf("cycle relations = %v, want [A B]", cycle.Relations)
	}
}

func TestMutualViewsCycle(t *testing.T) {
	g, err := Build(nil, []string{"v1", "v2"}, nil,
		[]Dependency{{From: "v1", To: "v2"}, {From: "v2", To: "v1"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := g.Order(); !migerr.Is(err, migerr.KindGraphCycle) {
		t.Errorf("got %v, want graph cycle error", err)
	}
}

func TestSelfReferenceIgnored(t *testing.T) {
	g, err := Build([]string{"employees"}, nil,
		[]Dependency{{From: "employees", To: "employees", Label: "manager_fk"}}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Edges()) != 0 {
		t.Errorf("self-referencing foreign key should not add an edge, got %v", g.Edges())
	}
	if _, err := g.Order(); err != nil {
		t.Errorf("Order: %v", err)
	}
}

func TestBuildNameCollision(t *testing.T) {
	_, err := Build([]string{"foo"}, []string{"foo"}, nil, nil)
	if !migerr.Is(err, migerr.KindNamespaceConflict) {
		t.Errorf("got %v, want namespace conflict", err)
	}
}

func TestBuildMissingEndpoint(t *testing.T) {
	_, err := Build([]string{"orders"}, nil, []Dependency{{From: "orders", To: "customers", Label: "orders_customer_fk"}}, nil)
	if !migerr.Is(err, migerr.KindDependencyIntegrity) {
		t.Errorf("got %v, want dependency integrity error", err)
	}
}

func TestNodeLookup(t *testing.T) {
	g := New()
	if err := g.AddNode("t", Table); err != nil {
		t.Fatal(err)
	}
	if err := g.AddNode("v", View); err != nil {
		t.Fatal(err)
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
	n, ok := g.Node("v")
	if !ok || n.Kind != View {
		t.Errorf("Node(v) = %+v, %v; want view", n, ok)
	}
	if _, ok := g.Node("missing"); ok {
		t.Error("Node(missing) should not be found")
	}
}
