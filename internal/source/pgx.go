package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/stats"
)

var (
	_ Source         = (*PgxSource)(nil)
	_ stats.Reporter = (*PgxSource)(nil)
)

func init() {
	Register("pgx", openPgx, "postgres", "postgresql")
}

// PgxSource reads from PostgreSQL through a pgx connection pool.
type PgxSource struct {
	pool *pgxpool.Pool
}

func openPgx(ctx context.Context, opts Options) (Source, error) {
	return NewPgxSource(ctx, opts)
}

// NewPgxSource connects and pings the database.
func NewPgxSource(ctx context.Context, opts Options) (*PgxSource, error) {
	poolConfig, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	if opts.Password != "" {
		poolConfig.ConnConfig.Password = opts.Password
	}
	if opts.MaxConns > 0 {
		poolConfig.MaxConns = int32(opts.MaxConns)
	}
	poolConfig.MinConns = 1
	poolConfig.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		registerRawTextTypes(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	cc := poolConfig.ConnConfig
	logging.Info("Connected to PostgreSQL source (pgx): %s:%d/%s", cc.Host, cc.Port, cc.Database)
	return &PgxSource{pool: pool}, nil
}

// OIDs of types whose cells are read as the server's text output.
const (
	int2vectorOID = 22
	jsonOID       = 114
	xmlOID        = 142
	timetzOID     = 1266
	jsonbOID      = 3802
)

// registerRawTextTypes makes pgx hand back these types as their text
// representation instead of decoding them. The default codecs unmarshal xml
// and json into Go values, which drops xml content and rewrites json
// numbers and key order.
func registerRawTextTypes(m *pgtype.Map) {
	for _, t := range []struct {
		name string
		oid  uint32
	}{
		{"int2vector", int2vectorOID},
		{"json", jsonOID},
		{"xml", xmlOID},
		{"timetz", timetzOID},
		{"jsonb", jsonbOID},
	} {
		m.RegisterType(&pgtype.Type{Name: t.name, OID: t.oid, Codec: pgtype.TextCodec{}})
	}
}

// DriverName returns "pgx".
func (p *PgxSource) DriverName() string { return "pgx" }

// Ping checks the connection.
func (p *PgxSource) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// PoolStats reports pgxpool statistics.
func (p *PgxSource) PoolStats() stats.PoolStats {
	st := p.pool.Stat()
	return stats.PoolStats{
		Driver:      "pgx",
		MaxConns:    int(st.MaxConns()),
		ActiveConns: int(st.AcquiredConns()),
		IdleConns:   int(st.IdleConns()),
		WaitCount:   st.EmptyAcquireCount(),
		WaitTimeMs:  st.AcquireDuration().Milliseconds(),
	}
}

// Close releases the pool.
func (p *PgxSource) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func pgxArray(p *[]string) any { return p }

func (p *PgxSource) Relations(ctx context.Context, schema string) ([]Relation, error) {
	rows, err := p.pool.Query(ctx, relationsQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()
	return scanRelations(rows)
}

func (p *PgxSource) Columns(ctx context.Context, schema string, tables []string) ([]ColumnInfo, error) {
	rows, err := p.pool.Query(ctx, columnsQuery, schema, tables)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()
	return scanColumns(rows)
}

func (p *PgxSource) ViewDefinitions(ctx context.Context, oids []uint32) ([]ViewDefinition, error) {
	rows, err := p.pool.Query(ctx, viewDefinitionsQuery, oids)
	if err != nil {
		return nil, fmt.Errorf("querying view definitions: %w", err)
	}
	defer rows.Close()
	return scanViewDefinitions(rows)
}

func (p *PgxSource) PrimaryKeys(ctx context.Context, schema string) ([]Constraint, error) {
	return p.keyConstraints(ctx, schema, constraintPrimaryKey)
}

func (p *PgxSource) UniqueConstraints(ctx context.Context, schema string) ([]Constraint, error) {
	return p.keyConstraints(ctx, schema, constraintUnique)
}

func (p *PgxSource) keyConstraints(ctx context.Context, schema, contype string) ([]Constraint, error) {
	rows, err := p.pool.Query(ctx, keyConstraintsQuery, schema, contype)
	if err != nil {
		return nil, fmt.Errorf("querying %s constraints: %w", contype, err)
	}
	defer rows.Close()
	return scanKeyConstraints(rows, pgxArray)
}

func (p *PgxSource) ForeignKeys(ctx context.Context, schema string) ([]Constraint, error) {
	rows, err := p.pool.Query(ctx, foreignKeysQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys: %w", err)
	}
	defer rows.Close()
	return scanForeignKeys(rows, pgxArray)
}

func (p *PgxSource) ViewUsages(ctx context.Context, schema string) ([]Usage, error) {
	rows, err := p.pool.Query(ctx, viewUsagesQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("querying view usage: %w", err)
	}
	defer rows.Close()
	return scanUsages(rows)
}

// StreamRows returns pgx's cursor directly; Values decodes each row into
// native Go and pgtype values.
func (p *PgxSource) StreamRows(ctx context.Context, schema, table string) (Rows, error) {
	query := "SELECT * FROM " + pgx.Identifier{schema, table}.Sanitize()
	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("selecting from %s.%s: %w", schema, table, err)
	}
	return rows, nil
}

func (p *PgxSource) RowCount(ctx context.Context, schema, table string) (int64, error) {
	var count int64
	query := "SELECT COUNT(*) FROM " + pgx.Identifier{schema, table}.Sanitize()
	if err := p.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}
