// Package transfer copies table rows from the source into the destination
// inside a single transaction.
package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/johndauphine/pg2sqlite/internal/catalog"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/migerr"
	"github.com/johndauphine/pg2sqlite/internal/progress"
	"github.com/johndauphine/pg2sqlite/internal/source"
	"github.com/johndauphine/pg2sqlite/internal/target"
	"github.com/johndauphine/pg2sqlite/internal/typemap"
)

// DefaultReportEvery is the number of rows between progress callbacks.
const DefaultReportEvery = 1000

// Options control a bulk load.
type Options struct {
	// ReportEvery is the number of rows between Observer.Add calls.
	ReportEvery int
	Observer    progress.Observer
}

func (o *Options) defaults() {
	if o.ReportEvery <= 0 {
		o.ReportEvery = DefaultReportEvery
	}
	if o.Observer == nil {
		o.Observer = progress.Null{}
	}
}

// TableStats records what was loaded into one table.
type TableStats struct {
	Schema   string
	Table    string
	Rows     int64
	Duration time.Duration
}

// Result summarizes a committed bulk load.
type Result struct {
	Tables   []TableStats
	Rows     int64
	Duration time.Duration
}

// Load copies every table of every catalog, in catalog load order, inside
// one destination transaction. Foreign key enforcement is switched off
// before the transaction and back on after it ends. Any failure rolls back
// the whole load.
func Load(ctx context.Context, src source.RowStreamer, dst *target.SQLite, catalogs []*catalog.Catalog, opts Options) (Result, error) {
	opts.defaults()
	start := time.Now()

	var tableCount int
	var approx int64
	for _, c := range catalogs {
		tableCount += len(c.Tables)
		approx += c.TotalApproxRows()
	}
	opts.Observer.SetTotals(tableCount, approx)
	defer opts.Observer.Finish()

	if err := dst.SetForeignKeys(ctx, false); err != nil {
		return Result{}, err
	}
	defer func() {
		// Uses a fresh context so enforcement is restored after cancellation.
		if err := dst.SetForeignKeys(context.Background(), true); err != nil {
			logging.Warn("Re-enabling foreign keys: %v", err)
		}
	}()

	tx, err := dst.Begin(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, c := range catalogs {
		for _, t := range c.OrderedTables() {
			stats, err := Table(ctx, src, tx, c.Schema, t, opts)
			if err != nil {
				if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
					logging.Error("Rollback failed: %v", rbErr)
				}
				logging.Error("Load failed on %s.%s; all tables rolled back", c.Schema, t.Name)
				return Result{}, err
			}
			result.Tables = append(result.Tables, stats)
			result.Rows += stats.Rows
		}
	}

	if err := tx.Commit(); err != nil {
		return Result{}, migerr.Wrap(migerr.KindDestinationWrite, "committing load", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// Table streams SELECT * for one table and inserts each converted row
// through a prepared statement on tx. Source row values are matched to
// catalog columns by position.
func Table(ctx context.Context, src source.RowStreamer, tx *sql.Tx, schema string, t *catalog.Table, opts Options) (TableStats, error) {
	opts.defaults()
	start := time.Now()
	opts.Observer.StartTable(t.Name, t.ApproxRows)
	defer opts.Observer.EndTable(t.Name)

	stmt, err := tx.PrepareContext(ctx, target.InsertSQL(t.Name, len(t.Columns)))
	if err != nil {
		return TableStats{}, migerr.Wrap(migerr.KindDestinationWrite, "preparing insert into "+t.Name, err)
	}
	defer stmt.Close()

	rows, err := src.StreamRows(ctx, schema, t.Name)
	if err != nil {
		return TableStats{}, fmt.Errorf("reading %s.%s: %w", schema, t.Name, err)
	}
	defer rows.Close()

	args := make([]any, len(t.Columns))
	var n, pending int64
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return TableStats{}, fmt.Errorf("reading %s.%s row %d: %w", schema, t.Name, n+1, err)
		}
		if len(values) != len(t.Columns) {
			return TableStats{}, migerr.Newf(migerr.KindCellTranslation,
				"%s row %d has %d values, table has %d columns", t.Name, n+1, len(values), len(t.Columns))
		}
		for i, col := range t.Columns {
			v, err := typemap.ConvertCell(values[i], col.Type, col.Nullable)
			if err != nil {
				return TableStats{}, fmt.Errorf("%s.%s row %d: %w", t.Name, col.Name, n+1, err)
			}
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return TableStats{}, migerr.Wrap(migerr.KindDestinationWrite,
				fmt.Sprintf("inserting %s row %d", t.Name, n+1), err)
		}

		n++
		pending++
		if pending >= int64(opts.ReportEvery) {
			opts.Observer.Add(pending)
			pending = 0
		}
	}
	if err := rows.Err(); err != nil {
		return TableStats{}, fmt.Errorf("reading %s.%s: %w", schema, t.Name, err)
	}
	if pending > 0 {
		opts.Observer.Add(pending)
	}

	stats := TableStats{Schema: schema, Table: t.Name, Rows: n, Duration: time.Since(start)}
	logging.Debug("Loaded %s.%s: %d rows in %s", schema, t.Name, n, stats.Duration.Round(time.Millisecond))
	return stats, nil
}
