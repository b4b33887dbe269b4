package source

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/stats"
	"github.com/lib/pq"
)

var (
	_ Source         = (*PQSource)(nil)
	_ stats.Reporter = (*PQSource)(nil)
)

func init() {
	Register("pq", openPQ, "libpq", "lib/pq")
}

// PQSource reads from PostgreSQL through database/sql and lib/pq.
type PQSource struct {
	db *sql.DB
}

func openPQ(ctx context.Context, opts Options) (Source, error) {
	return NewPQSource(ctx, opts)
}

// NewPQSource opens a database/sql handle and pings it.
func NewPQSource(ctx context.Context, opts Options) (*PQSource, error) {
	dsn := opts.DSN
	if opts.Password != "" {
		var err error
		if dsn, err = withPassword(dsn, opts.Password); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Info("Connected to PostgreSQL source (lib/pq)")
	return &PQSource{db: db}, nil
}

// withPassword sets the password on a URL or key=value connection string.
func withPassword(dsn, password string) (string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parsing connection url: %w", err)
		}
		user := ""
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(password)
	return strings.TrimSpace(dsn + " password='" + escaped + "'"), nil
}

// DriverName returns "pq".
func (p *PQSource) DriverName() string { return "pq" }

// Ping checks the connection.
func (p *PQSource) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// PoolStats reports database/sql pool statistics.
func (p *PQSource) PoolStats() stats.PoolStats {
	st := p.db.Stats()
	return stats.PoolStats{
		Driver:      "pq",
		MaxConns:    st.MaxOpenConnections,
		ActiveConns: st.InUse,
		IdleConns:   st.Idle,
		WaitCount:   st.WaitCount,
		WaitTimeMs:  st.WaitDuration.Milliseconds(),
	}
}

// Close closes the database handle.
func (p *PQSource) Close() error {
	return p.db.Close()
}

func pqArray(p *[]string) any { return (*pq.StringArray)(p) }

func (p *PQSource) Relations(ctx context.Context, schema string) ([]Relation, error) {
	rows, err := p.db.QueryContext(ctx, relationsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func (p *PQSource) Columns(ctx context.Context, schema string, tables []string) ([]ColumnInfo, error) {
	rows, err := p.db.QueryContext(ctx, columnsQuery, schema, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()
	return scanColumns(rows)
}

func (p *PQSource) ViewDefinitions(ctx context.Context, oids []uint32) ([]ViewDefinition, error) {
	ids := make([]int64, len(oids))
	for i, oid := range oids {
		ids[i] = int64(oid)
	}
	rows, err := p.db.QueryContext(ctx, viewDefinitionsQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("querying view definitions: %w", err)
	}
	defer rows.Close()
	return scanViewDefinitions(rows)
}

func (p *PQSource) PrimaryKeys(ctx context.Context, schema string) ([]Constraint, error) {
	return p.keyConstraints(ctx, schema, constraintPrimaryKey)
}

func (p *PQSource) UniqueConstraints(ctx context.Context, schema string) ([]Constraint, error) {
	return p.keyConstraints(ctx, schema, constraintUnique)
}

func (p *PQSource) keyConstraints(ctx context.Context, schema, contype string) ([]Constraint, error) {
	rows, err := p.db.QueryContext(ctx, keyConstraintsQuery, schema, contype)
	if err != nil {
		return nil, fmt.Errorf("querying %s constraints: %w", contype, err)
	}
	defer rows.Close()
	return scanKeyConstraints(rows, pqArray)
}

func (p *PQSource) ForeignKeys(ctx context.Context, schema string) ([]Constraint, error) {
	rows, err := p.db.QueryContext(ctx, foreignKeysQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()
	return scanForeignKeys(rows, pqArray)
}

func (p *PQSource) ViewUsages(ctx context.Context, schema string) ([]Usage, error) {
	rows, err := p.db.QueryContext(ctx, viewUsagesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("querying view usage: %w", err)
	}
	defer rows.Close()
	return scanUsages(rows)
}

func qualifyPQ(schema, table string) string {
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

func (p *PQSource) StreamRows(ctx context.Context, schema, table string) (Rows, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT * FROM "+qualifyPQ(schema, table))
	if err != nil {
		return nil, fmt.Errorf("selecting from %s.%s: %w", schema, table, err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("reading columns of %s.%s: %w", schema, table, err)
	}
	return &sqlRows{rows: rows, width: len(cols)}, nil
}

func (p *PQSource) RowCount(ctx context.Context, schema, table string) (int64, error) {
	var count int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+qualifyPQ(schema, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}

// sqlRows adapts *sql.Rows to Rows.
type sqlRows struct {
	rows  *sql.Rows
	width int
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]any, error) {
	vals := make([]any, r.width)
	ptrs := make([]any, r.width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	return vals, nil
}

func (r *sqlRows) Err() error { return r.rows.Err() }

func (r *sqlRows) Close() { r.rows.Close() }
