// Package catalog builds an in-memory model of one PostgreSQL schema and
// renders it as SQLite DDL.
package catalog

import (
	"fmt"
	"sort"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

// Column is one column of a table. Its position in Table.Columns is the
// position used for inserts.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// KeyConstraint is a primary key or unique constraint.
type KeyConstraint struct {
	Name    string
	Table   string
	Columns []string
}

// ForeignKey references RefColumns of RefTable from Columns of Table.
// Columns and RefColumns correspond by position.
type ForeignKey struct {
	Name       string
	Table      string
	Columns    []string
	RefSchema  string
	RefTable   string
	RefColumns []string

	// Captured but not used for ordering.
	Deferrable        bool
	InitiallyDeferred bool
}

// Table is a base table.
type Table struct {
	OID     uint32
	Name    string
	Columns []Column
	// ApproxRows is the planner estimate, -1 when the table was never analyzed.
	ApproxRows  int64
	PrimaryKey  *KeyConstraint
	Uniques     []KeyConstraint
	ForeignKeys []*ForeignKey
}

// View is a view or materialized view with its definition text.
type View struct {
	OID        uint32
	Name       string
	Definition string
}

// ViewUsage records that View reads Base.
type ViewUsage struct {
	Base string
	View string
}

// Catalog is the model of one schema. It is not modified after Build returns.
type Catalog struct {
	Schema      string
	Tables      map[string]*Table
	Views       map[string]*View
	ForeignKeys map[string]*ForeignKey
	Usages      []ViewUsage
	// Order lists every relation so that each comes after what it depends on.
	Order []string
}

// New returns an empty catalog for schema.
func New(schema string) *Catalog {
	return &Catalog{
		Schema:      schema,
		Tables:      make(map[string]*Table),
		Views:       make(map[string]*View),
		ForeignKeys: make(map[string]*ForeignKey),
	}
}

func (c *Catalog) conflict(name string) error {
	if _, ok := c.Tables[name]; ok {
		return migerr.Newf(migerr.KindNamespaceConflict, "relation %s.%s already exists as a table", c.Schema, name)
	}
	if _, ok := c.Views[name]; ok {
		return migerr.Newf(migerr.KindNamespaceConflict, "relation %s.%s already exists as a view", c.Schema, name)
	}
	return nil
}

// AddTable registers a table. The name must be unused by tables and views.
func (c *Catalog) AddTable(t *Table) error {
	if err := c.conflict(t.Name); err != nil {
		return err
	}
	c.Tables[t.Name] = t
	return nil
}

// AddView registers a view. The name must be unused by tables and views.
func (c *Catalog) AddView(v *View) error {
	if err := c.conflict(v.Name); err != nil {
		return err
	}
	c.Views[v.Name] = v
	return nil
}

// AddForeignKey attaches fk to its owning table and records it by name.
func (c *Catalog) AddForeignKey(fk *ForeignKey) error {
	if _, ok := c.ForeignKeys[fk.Name]; ok {
		return migerr.Newf(migerr.KindNamespaceConflict, "duplicate foreign key name %s", fk.Name)
	}
	t, ok := c.Tables[fk.Table]
	if !ok {
		return migerr.Newf(migerr.KindIntrospection, "foreign key %s belongs to unknown table %s", fk.Name, fk.Table)
	}
	if len(fk.Columns) != len(fk.RefColumns) {
		return migerr.Newf(migerr.KindIntrospection,
			"foreign key %s has %d columns but references %d", fk.Name, len(fk.Columns), len(fk.RefColumns))
	}
	c.ForeignKeys[fk.Name] = fk
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return nil
}

// OrderedTables returns the tables in load order.
func (c *Catalog) OrderedTables() []*Table {
	out := make([]*Table, 0, len(c.Tables))
	for _, name := range c.Order {
		if t, ok := c.Tables[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// OrderedViews returns the views in creation order.
func (c *Catalog) OrderedViews() []*View {
	out := make([]*View, 0, len(c.Views))
	for _, name := range c.Order {
		if v, ok := c.Views[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// TotalApproxRows sums the row estimates, counting unanalyzed tables as empty.
func (c *Catalog) TotalApproxRows() int64 {
	var total int64
	for _, t := range c.Tables {
		if t.ApproxRows > 0 {
			total += t.ApproxRows
		}
	}
	return total
}

func (c *Catalog) relationNames() []string {
	names := make([]string, 0, len(c.Tables)+len(c.Views))
	for name := range c.Tables {
		names = append(names, name)
	}
	for name := range c.Views {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) String() string {
	return fmt.Sprintf("schema %s (%d tables, %d views)", c.Schema, len(c.Tables), len(c.Views))
}
