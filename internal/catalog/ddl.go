package catalog

import (
	"fmt"
	"strings"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
	"github.com/johndauphine/pg2sqlite/internal/target"
	"github.com/johndauphine/pg2sqlite/internal/typemap"
)

// TableDDL renders the CREATE TABLE statement for t:
//
//	CREATE TABLE users (
//	  id INTEGER NOT NULL -- INT4
//	  , email TEXT -- VARCHAR
//	  , CONSTRAINT users_pkey PRIMARY KEY (id)
//	); -- ~ 42 rows
//
// Every unmappable column is reported, not just the first.
func TableDDL(t *Table) (string, error) {
	var errs migerr.List
	lines := make([]string, 0, len(t.Columns)+len(t.Uniques)+len(t.ForeignKeys)+1)

	for _, col := range t.Columns {
		class, err := typemap.MapType(col.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("column %s.%s: %w", t.Name, col.Name, err))
			continue
		}
		line := target.QuoteIdent(col.Name) + " " + class.String()
		if !col.Nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line+" -- "+strings.ToUpper(col.Type))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return "", err
	}

	if pk := t.PrimaryKey; pk != nil {
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			target.QuoteIdent(pk.Name), target.QuoteIdents(pk.Columns)))
	}
	for _, u := range t.Uniques {
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)",
			target.QuoteIdent(u.Name), target.QuoteIdents(u.Columns)))
	}
	for _, fk := range t.ForeignKeys {
		lines = append(lines, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
			target.QuoteIdent(fk.Name), target.QuoteIdents(fk.Columns),
			target.QuoteIdent(fk.RefTable), target.QuoteIdents(fk.RefColumns)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n  %s\n", target.QuoteIdent(t.Name), strings.Join(lines, "\n  , "))
	fmt.Fprintf(&b, "); -- ~ %d rows\n", t.ApproxRows)
	return b.String(), nil
}

// ViewDDL renders the CREATE VIEW statement for v. The body is copied as
// captured from PostgreSQL.
func ViewDDL(v *View) string {
	body := strings.TrimSpace(v.Definition)
	if !strings.HasSuffix(body, ";") {
		body += ";"
	}
	return fmt.Sprintf("CREATE VIEW %s AS\n%s\n", target.QuoteIdent(v.Name), body)
}

// TableStatements renders every table in load order. Type mapping errors
// from all tables are returned together.
func (c *Catalog) TableStatements() ([]string, error) {
	tables := c.OrderedTables()
	stmts := make([]string, 0, len(tables))
	var errs migerr.List
	for _, t := range tables {
		stmt, err := TableDDL(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stmts = append(stmts, stmt)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return stmts, nil
}

// ViewStatements renders every view in creation order.
func (c *Catalog) ViewStatements() []string {
	views := c.OrderedViews()
	stmts := make([]string, 0, len(views))
	for _, v := range views {
		stmts = append(stmts, ViewDDL(v))
	}
	return stmts
}
