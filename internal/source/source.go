// Package source reads catalog metadata and row data from a PostgreSQL
// database. Two drivers are available: pgx (the default, through pgxpool)
// and lib/pq (through database/sql). Both run the same catalog queries.
package source

import (
	"context"
)

// Relation is one row of the relation listing for a schema.
type Relation struct {
	OID  uint32
	Name string
	// Kind is the pg_class relkind code: r, p, v, m, ...
	Kind string
	// ApproxRows is pg_class.reltuples. It is -1 for never-analyzed tables.
	ApproxRows int64
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Table    string
	Name     string
	Type     string // udt_name
	Nullable bool
	Position int
}

// ViewDefinition is the captured body of a view.
type ViewDefinition struct {
	OID        uint32
	Name       string
	Definition string
}

// Constraint is a primary key, unique or foreign key constraint with its
// columns in key order. The Ref fields are set for foreign keys only.
type Constraint struct {
	Name              string
	Table             string
	Columns           []string
	RefSchema         string
	RefTable          string
	RefColumns        []string
	Deferrable        bool
	InitiallyDeferred bool
}

// Usage records that View reads from Base.
type Usage struct {
	Base string
	View string
}

// Rows is a forward-only cursor over a table's rows.
type Rows interface {
	Next() bool
	// Values returns the current row, one element per column, nil for NULL.
	Values() ([]any, error)
	Err() error
	Close()
}

// Introspector lists catalog metadata for a schema.
type Introspector interface {
	Relations(ctx context.Context, schema string) ([]Relation, error)
	Columns(ctx context.Context, schema string, tables []string) ([]ColumnInfo, error)
	ViewDefinitions(ctx context.Context, oids []uint32) ([]ViewDefinition, error)
	PrimaryKeys(ctx context.Context, schema string) ([]Constraint, error)
	UniqueConstraints(ctx context.Context, schema string) ([]Constraint, error)
	ForeignKeys(ctx context.Context, schema string) ([]Constraint, error)
	ViewUsages(ctx context.Context, schema string) ([]Usage, error)
}

// RowStreamer reads table data.
type RowStreamer interface {
	// StreamRows runs SELECT * over the table and returns the open cursor.
	StreamRows(ctx context.Context, schema, table string) (Rows, error)
	// RowCount returns an exact COUNT(*) for the table.
	RowCount(ctx context.Context, schema, table string) (int64, error)
}

// Source is a connected PostgreSQL source.
type Source interface {
	Introspector
	RowStreamer
	// DriverName returns the registered driver name.
	DriverName() string
	Ping(ctx context.Context) error
	Close() error
}

// Options configure how a driver connects.
type Options struct {
	DSN string
	// Password overrides any password in DSN when non-empty.
	Password string
	MaxConns int
}
