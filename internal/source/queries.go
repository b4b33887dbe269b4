package source

import "fmt"

// Catalog queries shared by both drivers. Partition children are skipped:
// their rows are read through the partitioned parent.
const (
	relationsQuery = `
		SELECT
			c.oid,
			c.relname::text,
			c.relkind::text,
			c.reltuples::bigint
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind IN ('r', 'p', 'v', 'm')
		  AND NOT c.relispartition
		ORDER BY c.relname
	`

	columnsQuery = `
		SELECT
			table_name::text,
			column_name::text,
			udt_name::text,
			is_nullable = 'YES',
			ordinal_position::int
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = ANY($2)
		ORDER BY table_name, ordinal_position
	`

	viewDefinitionsQuery = `
		SELECT
			c.oid,
			c.relname::text,
			pg_catalog.pg_get_viewdef(c.oid)
		FROM pg_catalog.pg_class c
		WHERE c.oid = ANY($1::oid[])
		ORDER BY c.relname
	`

	// $2 is the constraint type: 'p' or 'u'.
	keyConstraintsQuery = `
		SELECT
			con.conname::text,
			rel.relname::text,
			array_agg(att.attname::text ORDER BY k.ord),
			con.condeferrable,
			con.condeferred
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class rel ON rel.oid = con.conrelid
		JOIN pg_catalog.pg_namespace nsp ON nsp.oid = rel.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
		JOIN pg_catalog.pg_attribute att
			ON att.attrelid = con.conrelid AND att.attnum = k.attnum
		WHERE nsp.nspname = $1
		  AND con.contype::text = $2
		  AND NOT rel.relispartition
		GROUP BY con.oid, con.conname, rel.relname, con.condeferrable, con.condeferred
		ORDER BY rel.relname, con.conname
	`

	foreignKeysQuery = `
		SELECT
			con.conname::text,
			rel.relname::text,
			array_agg(att.attname::text ORDER BY k.ord),
			fnsp.nspname::text,
			frel.relname::text,
			array_agg(fatt.attname::text ORDER BY k.ord),
			con.condeferrable,
			con.condeferred
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class rel ON rel.oid = con.conrelid
		JOIN pg_catalog.pg_namespace nsp ON nsp.oid = rel.relnamespace
		JOIN pg_catalog.pg_class frel ON frel.oid = con.confrelid
		JOIN pg_catalog.pg_namespace fnsp ON fnsp.oid = frel.relnamespace
		CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, fattnum, ord)
		JOIN pg_catalog.pg_attribute att
			ON att.attrelid = con.conrelid AND att.attnum = k.attnum
		JOIN pg_catalog.pg_attribute fatt
			ON fatt.attrelid = con.confrelid AND fatt.attnum = k.fattnum
		WHERE nsp.nspname = $1
		  AND con.contype = 'f'
		  AND con.conparentid = 0
		  AND NOT rel.relispartition
		GROUP BY con.oid, con.conname, rel.relname, fnsp.nspname, frel.relname,
			con.condeferrable, con.condeferred
		ORDER BY rel.relname, con.conname
	`

	viewUsagesQuery = `
		SELECT DISTINCT
			base.relname::text,
			dependent.relname::text
		FROM pg_catalog.pg_depend dep
		JOIN pg_catalog.pg_rewrite rw ON dep.objid = rw.oid
		JOIN pg_catalog.pg_class dependent ON rw.ev_class = dependent.oid
		JOIN pg_catalog.pg_class base ON dep.refobjid = base.oid
		JOIN pg_catalog.pg_namespace base_ns ON base_ns.oid = base.relnamespace
		JOIN pg_catalog.pg_namespace dep_ns ON dep_ns.oid = dependent.relnamespace
		WHERE base_ns.nspname = $1
		  AND dep_ns.nspname = $1
		  AND dep.classid = 'pg_catalog.pg_rewrite'::regclass
		  AND dep.refclassid = 'pg_catalog.pg_class'::regclass
		  AND base.oid <> dependent.oid
		ORDER BY 1, 2
	`
)

const (
	constraintPrimaryKey = "p"
	constraintUnique     = "u"
)

// rowScanner is the part of pgx.Rows and *sql.Rows the collectors need.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// arrayDest adapts a *[]string to the scan target a driver expects for text[].
type arrayDest func(*[]string) any

func scanRelations(rows rowScanner) ([]Relation, error) {
	var rels []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.OID, &r.Name, &r.Kind, &r.ApproxRows); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func scanColumns(rows rowScanner) ([]ColumnInfo, error) {
	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Table, &c.Name, &c.Type, &c.Nullable, &c.Position); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func scanViewDefinitions(rows rowScanner) ([]ViewDefinition, error) {
	var defs []ViewDefinition
	for rows.Next() {
		var d ViewDefinition
		if err := rows.Scan(&d.OID, &d.Name, &d.Definition); err != nil {
			return nil, fmt.Errorf("scanning view definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func scanKeyConstraints(rows rowScanner, arr arrayDest) ([]Constraint, error) {
	var cons []Constraint
	for rows.Next() {
		var c Constraint
		if err := rows.Scan(&c.Name, &c.Table, arr(&c.Columns), &c.Deferrable, &c.InitiallyDeferred); err != nil {
			return nil, fmt.Errorf("scanning constraint: %w", err)
		}
		cons = append(cons, c)
	}
	return cons, rows.Err()
}

func scanForeignKeys(rows rowScanner, arr arrayDest) ([]Constraint, error) {
	var cons []Constraint
	for rows.Next() {
		var c Constraint
		if err := rows.Scan(&c.Name, &c.Table, arr(&c.Columns), &c.RefSchema, &c.RefTable,
			arr(&c.RefColumns), &c.Deferrable, &c.InitiallyDeferred); err != nil {
			return nil, fmt.Errorf("scanning foreign key: %w", err)
		}
		cons = append(cons, c)
	}
	return cons, rows.Err()
}

func scanUsages(rows rowScanner) ([]Usage, error) {
	var usages []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.Base, &u.View); err != nil {
			return nil, fmt.Errorf("scanning view usage: %w", err)
		}
		usages = append(usages, u)
	}
	return usages, rows.Err()
}
