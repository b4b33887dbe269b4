package catalog

import (
	"context"
	"sort"

	"github.com/johndauphine/pg2sqlite/internal/depgraph"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/migerr"
	"github.com/johndauphine/pg2sqlite/internal/source"
)

// Build introspects schema through src, validates the result and computes
// the load order. No catalog is returned on error.
func Build(ctx context.Context, src source.Introspector, schema string) (*Catalog, error) {
	c := New(schema)

	rels, err := src.Relations(ctx, schema)
	if err != nil {
		return nil, migerr.Wrap(migerr.KindIntrospection, "listing relations in "+schema, err)
	}

	var tableNames []string
	var viewOIDs []uint32
	for _, r := range rels {
		switch r.Kind {
		case "r", "p":
			err = c.AddTable(&Table{OID: r.OID, Name: r.Name, ApproxRows: r.ApproxRows})
			tableNames = append(tableNames, r.Name)
		case "v", "m":
			err = c.AddView(&View{OID: r.OID, Name: r.Name})
			viewOIDs = append(viewOIDs, r.OID)
		default:
			err = migerr.Newf(migerr.KindIntrospection, "relation %s.%s has unsupported kind %q", schema, r.Name, r.Kind)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(tableNames) > 0 {
		if err := c.loadColumns(ctx, src, tableNames); err != nil {
			return nil, err
		}
	}
	if len(viewOIDs) > 0 {
		if err := c.loadViewDefinitions(ctx, src, viewOIDs); err != nil {
			return nil, err
		}
	}
	if err := c.loadConstraints(ctx, src); err != nil {
		return nil, err
	}
	if err := c.loadUsages(ctx, src); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.ComputeOrder(); err != nil {
		return nil, err
	}
	if err := c.checkColumns(); err != nil {
		return nil, err
	}

	logging.Debug("Catalog %s: %d tables, %d views, %d foreign keys, %d view usages",
		schema, len(c.Tables), len(c.Views), len(c.ForeignKeys), len(c.Usages))
	return c, nil
}

func (c *Catalog) loadColumns(ctx context.Context, src source.Introspector, tables []string) error {
	cols, err := src.Columns(ctx, c.Schema, tables)
	if err != nil {
		return migerr.Wrap(migerr.KindIntrospection, "listing columns", err)
	}
	sort.SliceStable(cols, func(i, j int) bool {
		if cols[i].Table != cols[j].Table {
			return cols[i].Table < cols[j].Table
		}
		return cols[i].Position < cols[j].Position
	})
	for _, col := range cols {
		t, ok := c.Tables[col.Table]
		if !ok {
			return migerr.Newf(migerr.KindIntrospection, "column %s belongs to unknown table %s", col.Name, col.Table)
		}
		t.Columns = append(t.Columns, Column{Name: col.Name, Type: col.Type, Nullable: col.Nullable})
	}
	return nil
}

// checkColumns rejects tables without columns, which SQLite can neither
// create nor insert into.
func (c *Catalog) checkColumns() error {
	var errs migerr.List
	for _, name := range sortedKeys(c.Tables) {
		if len(c.Tables[name].Columns) == 0 {
			errs = append(errs, migerr.Newf(migerr.KindIntrospection,
				"table %s.%s has no columns; SQLite cannot create it", c.Schema, name))
		}
	}
	return errs.ErrorOrNil()
}

func (c *Catalog) loadViewDefinitions(ctx context.Context, src source.Introspector, oids []uint32) error {
	defs, err := src.ViewDefinitions(ctx, oids)
	if err != nil {
		return migerr.Wrap(migerr.KindIntrospection, "reading view definitions", err)
	}
	byOID := make(map[uint32]*View, len(c.Views))
	for _, v := range c.Views {
		byOID[v.OID] = v
	}
	for _, d := range defs {
		v, ok := byOID[d.OID]
		if !ok {
			return migerr.Newf(migerr.KindIntrospection, "definition for unknown view %s (oid %d)", d.Name, d.OID)
		}
		v.Definition = d.Definition
	}
	for _, name := range sortedKeys(c.Views) {
		if c.Views[name].Definition == "" {
			return migerr.Newf(migerr.KindIntrospection, "view %s.%s has no definition", c.Schema, name)
		}
	}
	return nil
}

func (c *Catalog) loadConstraints(ctx context.Context, src source.Introspector) error {
	pks, err := src.PrimaryKeys(ctx, c.Schema)
	if err != nil {
		return migerr.Wrap(migerr.KindIntrospection, "listing primary keys", err)
	}
	for _, pk := range pks {
		t, ok := c.Tables[pk.Table]
		if !ok {
			return migerr.Newf(migerr.KindIntrospection, "primary key %s belongs to unknown table %s", pk.Name, pk.Table)
		}
		if t.PrimaryKey != nil {
			return migerr.Newf(migerr.KindIntrospection, "table %s has two primary keys (%s, %s)", t.Name, t.PrimaryKey.Name, pk.Name)
		}
		t.PrimaryKey = &KeyConstraint{Name: pk.Name, Table: pk.Table, Columns: pk.Columns}
	}

	uniques, err := src.UniqueConstraints(ctx, c.Schema)
	if err != nil {
		return migerr.Wrap(migerr.KindIntrospection, "listing unique constraints", err)
	}
	for _, u := range uniques {
		t, ok := c.Tables[u.Table]
		if !ok {
			return migerr.Newf(migerr.KindIntrospection, "unique constraint %s belongs to unknown table %s", u.Name, u.Table)
		}
		t.Uniques = append(t.Uniques, KeyConstraint{Name: u.Name, Table: u.Table, Columns: u.Columns})
	}

	fks, err := src.ForeignKeys(ctx, c.Schema)
	if err != nil {
		return migerr.Wrap(migerr.KindIntrospection, "listing foreign keys", err)
	}
	for _, fk := range fks {
		err := c.AddForeignKey(&ForeignKey{
			Name:              fk.Name,
			Table:             fk.Table,
			Columns:           fk.Columns,
			RefSchema:         fk.RefSchema,
			RefTable:          fk.RefTable,
			RefColumns:        fk.RefColumns,
			Deferrable:        fk.Deferrable,
			InitiallyDeferred: fk.InitiallyDeferred,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) loadUsages(ctx context.Context, src source.Introspector) error {
	usages, err := src.ViewUsages(ctx, c.Schema)
	if err != nil {
		return migerr.Wrap(migerr.KindIntrospection, "listing view usages", err)
	}
	for _, u := range usages {
		if _, ok := c.Views[u.View]; !ok {
			logging.Debug("Skipping usage %s -> %s: view not in catalog", u.Base, u.View)
			continue
		}
		if _, isTable := c.Tables[u.Base]; !isTable {
			if _, isView := c.Views[u.Base]; !isView {
				logging.Debug("Skipping usage %s -> %s: base relation not in schema %s", u.Base, u.View, c.Schema)
				continue
			}
		}
		c.Usages = append(c.Usages, ViewUsage{Base: u.Base, View: u.View})
	}
	return nil
}

// Graph builds the dependency graph of the catalog.
func (c *Catalog) Graph() (*depgraph.Graph, error) {
	tables := sortedKeys(c.Tables)
	views := sortedKeys(c.Views)

	fks := make([]depgraph.Dependency, 0, len(c.ForeignKeys))
	for _, name := range sortedKeys(c.ForeignKeys) {
		fk := c.ForeignKeys[name]
		fks = append(fks, depgraph.Dependency{From: fk.Table, To: fk.RefTable, Label: fk.Name})
	}
	usages := make([]depgraph.Dependency, 0, len(c.Usages))
	for _, u := range c.Usages {
		usages = append(usages, depgraph.Dependency{From: u.Base, To: u.View, Label: u.Base + "->" + u.View})
	}
	return depgraph.Build(tables, views, fks, usages)
}

// ComputeOrder fills Order from the dependency graph.
func (c *Catalog) ComputeOrder() error {
	g, err := c.Graph()
	if err != nil {
		return err
	}
	order, err := g.Order()
	if err != nil {
		return err
	}
	c.Order = order
	return nil
}
