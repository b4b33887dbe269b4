// Package orchestrator runs a migration end to end: introspect, order,
// emit DDL, bulk load and optionally validate.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johndauphine/pg2sqlite/internal/catalog"
	"github.com/johndauphine/pg2sqlite/internal/config"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/progress"
	"github.com/johndauphine/pg2sqlite/internal/source"
	"github.com/johndauphine/pg2sqlite/internal/stats"
	"github.com/johndauphine/pg2sqlite/internal/target"
	"github.com/johndauphine/pg2sqlite/internal/transfer"
)

// Orchestrator coordinates the migration process
type Orchestrator struct {
	config   *config.Config
	src      source.Source
	out      io.Writer
	observer progress.Observer
}

// New connects to the source described by cfg. password, when non-empty,
// overrides any password in the configuration.
func New(ctx context.Context, cfg *config.Config, password string) (*Orchestrator, error) {
	if password == "" {
		password = cfg.Source.Password
	}
	src, err := source.Open(ctx, cfg.Source.Driver, source.Options{
		DSN:      cfg.SourceDSN(),
		Password: password,
		MaxConns: cfg.Source.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to source: %w", err)
	}
	return NewWithSource(cfg, src), nil
}

// NewWithSource wraps an already connected source.
func NewWithSource(cfg *config.Config, src source.Source) *Orchestrator {
	return &Orchestrator{
		config:   cfg,
		src:      src,
		out:      os.Stdout,
		observer: progress.Null{},
	}
}

// SetOutput sets where DDL is printed when the target is STDOUT.
func (o *Orchestrator) SetOutput(w io.Writer) { o.out = w }

// SetObserver sets the bulk load progress observer.
func (o *Orchestrator) SetObserver(obs progress.Observer) { o.observer = obs }

// Close releases the source connection.
func (o *Orchestrator) Close() {
	if r, ok := o.src.(stats.Reporter); ok {
		logging.Debug("Source pool %s", r.PoolStats())
	}
	if err := o.src.Close(); err != nil {
		logging.Warn("Closing source: %v", err)
	}
}

// Summary describes a finished run.
type Summary struct {
	RunID       string                `json:"run_id"`
	Mode        string                `json:"mode"`
	Driver      string                `json:"driver"`
	Schemas     []string              `json:"schemas"`
	Destination string                `json:"destination"`
	Tables      int                   `json:"tables"`
	Views       int                   `json:"views"`
	Rows        int64                 `json:"rows"`
	Validated   bool                  `json:"validated"`
	Duration    time.Duration         `json:"duration_ns"`
	TableStats  []transfer.TableStats `json:"table_stats,omitempty"`
}

// plan is everything computed before the destination is touched.
type plan struct {
	catalogs []*catalog.Catalog
	tables   []string
	views    []string
}

// Run executes one migration. No destination is created or modified if
// introspection, ordering or DDL generation fails.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	cfg := o.config
	start := time.Now()
	summary := &Summary{
		RunID:       uuid.New().String()[:8],
		Mode:        cfg.Migration.Mode,
		Driver:      o.src.DriverName(),
		Schemas:     cfg.Source.Schemas,
		Destination: cfg.Target.Path,
	}
	logging.Info("Starting run %s: %s -> %s (%s)", summary.RunID,
		strings.Join(cfg.Source.Schemas, ","), cfg.Target.Path, cfg.Migration.Mode)

	p, err := o.prepare(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range p.catalogs {
		summary.Tables += len(c.Tables)
		if !cfg.Migration.NoViews {
			summary.Views += len(c.Views)
		}
	}

	if cfg.IsStdout() {
		if err := o.writeDDL(p); err != nil {
			return nil, err
		}
		summary.Duration = time.Since(start)
		return summary, nil
	}

	if err := o.checkDestination(); err != nil {
		return nil, err
	}
	dst, err := target.Open(cfg.Target.Path, target.Options{
		JournalMode:   cfg.Target.JournalMode,
		BusyTimeoutMS: cfg.Target.BusyTimeoutMS,
	})
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	if cfg.Migration.Mode != config.ModeDataOnly {
		if err := o.createSchema(ctx, dst, p); err != nil {
			return nil, err
		}
	} else if err := o.checkTablesExist(ctx, dst, p.catalogs); err != nil {
		return nil, err
	}

	if cfg.Migration.Mode != config.ModeSchemaOnly {
		res, err := transfer.Load(ctx, o.src, dst, p.catalogs, transfer.Options{
			ReportEvery: cfg.Migration.ReportEvery,
			Observer:    o.observer,
		})
		if err != nil {
			return nil, err
		}
		summary.Rows = res.Rows
		summary.TableStats = res.Tables

		if cfg.Migration.Validate {
			if err := o.Validate(ctx, dst, p.catalogs); err != nil {
				return nil, err
			}
			summary.Validated = true
		}
	}

	summary.Duration = time.Since(start)
	logging.Info("Run %s finished: %d tables, %d views, %d rows in %s", summary.RunID,
		summary.Tables, summary.Views, summary.Rows, summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// prepare builds every catalog and renders all DDL.
func (o *Orchestrator) prepare(ctx context.Context) (*plan, error) {
	p := &plan{}
	for _, schema := range o.config.Source.Schemas {
		logging.Info("Introspecting schema %s...", schema)
		c, err := catalog.Build(ctx, o.src, schema)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", schema, err)
		}
		logging.Info("Found %s", c)
		p.catalogs = append(p.catalogs, c)
	}
	if err := catalog.CheckDisjoint(p.catalogs); err != nil {
		return nil, err
	}

	for _, c := range p.catalogs {
		stmts, err := c.TableStatements()
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", c.Schema, err)
		}
		p.tables = append(p.tables, stmts...)
		if !o.config.Migration.NoViews {
			p.views = append(p.views, c.ViewStatements()...)
		}
	}
	return p, nil
}

func (o *Orchestrator) writeDDL(p *plan) error {
	for _, stmt := range append(append([]string{}, p.tables...), p.views...) {
		if _, err := fmt.Fprintln(o.out, stmt); err != nil {
			return fmt.Errorf("writing DDL: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) checkDestination() error {
	if o.config.Migration.Mode == config.ModeDataOnly {
		return target.RequireExisting(o.config.Target.Path)
	}
	return target.PrepareDestination(o.config.Target.Path, o.config.Target.Overwrite)
}

func (o *Orchestrator) createSchema(ctx context.Context, dst *target.SQLite, p *plan) error {
	logging.Info("Creating %d tables in %s...", len(p.tables), dst.Path())
	if err := dst.ExecStatements(ctx, p.tables); err != nil {
		return err
	}
	if len(p.views) == 0 {
		return nil
	}
	logging.Info("Creating %d views in %s...", len(p.views), dst.Path())
	if err := dst.ExecStatements(ctx, p.views); err != nil {
		return fmt.Errorf("%w (view bodies are copied verbatim; use --no-views to skip them)", err)
	}
	return nil
}

func (o *Orchestrator) checkTablesExist(ctx context.Context, dst *target.SQLite, catalogs []*catalog.Catalog) error {
	var missing []string
	for _, c := range catalogs {
		for _, t := range c.OrderedTables() {
			ok, err := dst.TableExists(ctx, t.Name)
			if err != nil {
				return err
			}
			if !ok {
				missing = append(missing, t.Name)
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("destination %s is missing tables: %s", o.config.Target.Path, strings.Join(missing, ", "))
	}
	return nil
}
