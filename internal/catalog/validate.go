package catalog

import (
	"sort"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

// Validate runs every consistency check and returns all problems found as
// one batched error.
func (c *Catalog) Validate() error {
	var errs migerr.List
	errs = append(errs, c.validateNamespace()...)
	errs = append(errs, c.validateForeignKeyTables()...)
	return errs.ErrorOrNil()
}

// validateNamespace reports names used by both a table and a view.
func (c *Catalog) validateNamespace() []error {
	var errs []error
	for _, name := range sortedKeys(c.Views) {
		if _, ok := c.Tables[name]; ok {
			errs = append(errs, migerr.Newf(migerr.KindNamespaceConflict,
				"%s.%s is both a table and a view", c.Schema, name))
		}
	}
	return errs
}

// validateForeignKeyTables reports foreign keys whose owning or referenced
// table is not part of this catalog.
func (c *Catalog) validateForeignKeyTables() []error {
	var errs []error
	for _, name := range sortedKeys(c.ForeignKeys) {
		fk := c.ForeignKeys[name]
		if _, ok := c.Tables[fk.Table]; !ok {
			errs = append(errs, migerr.Newf(migerr.KindDependencyIntegrity,
				"foreign key %s belongs to %s, which is not a table in %s", fk.Name, fk.Table, c.Schema))
		}
		if fk.RefSchema != "" && fk.RefSchema != c.Schema {
			errs = append(errs, migerr.Newf(migerr.KindDependencyIntegrity,
				"foreign key %s on %s references %s.%s outside schema %s", fk.Name, fk.Table, fk.RefSchema, fk.RefTable, c.Schema))
			continue
		}
		if _, ok := c.Tables[fk.RefTable]; !ok {
			errs = append(errs, migerr.Newf(migerr.KindDependencyIntegrity,
				"foreign key %s on %s references missing table %s", fk.Name, fk.Table, fk.RefTable))
		}
	}
	return errs
}

// CheckDisjoint reports relation names shared by more than one catalog.
// All schemas load into one SQLite namespace.
func CheckDisjoint(catalogs []*Catalog) error {
	owner := make(map[string]string)
	var errs migerr.List
	for _, c := range catalogs {
		for _, name := range c.relationNames() {
			if prev, ok := owner[name]; ok {
				errs = append(errs, migerr.Newf(migerr.KindNamespaceConflict,
					"relation %s exists in both %s and %s", name, prev, c.Schema))
				continue
			}
			owner[name] = c.Schema
		}
	}
	return errs.ErrorOrNil()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
