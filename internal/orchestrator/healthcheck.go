package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/johndauphine/pg2sqlite/internal/catalog"
	"github.com/johndauphine/pg2sqlite/internal/logging"
)

// HealthCheckResult contains connectivity test results.
type HealthCheckResult struct {
	Timestamp        string `json:"timestamp"`
	SourceDriver     string `json:"source_driver"`
	SourceConnected  bool   `json:"source_connected"`
	SourceLatencyMs  int64  `json:"source_latency_ms"`
	SourceTableCount int    `json:"source_table_count"`
	SourceError      string `json:"source_error,omitempty"`
	TargetPath       string `json:"target_path"`
	TargetWritable   bool   `json:"target_writable"`
	TargetError      string `json:"target_error,omitempty"`
	Healthy          bool   `json:"healthy"`
}

// HealthCheck pings the source and checks that the destination directory
// accepts new files. Both checks run in parallel with their own timeout.
func (o *Orchestrator) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	result := &HealthCheckResult{
		Timestamp:    time.Now().Format(time.RFC3339),
		SourceDriver: o.src.DriverName(),
		TargetPath:   o.config.Target.Path,
	}

	const checkTimeout = 30 * time.Second

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()

		if err := o.src.Ping(sctx); err != nil {
			result.SourceError = err.Error()
		} else {
			result.SourceConnected = true
			for _, schema := range o.config.Source.Schemas {
				rels, err := o.src.Relations(sctx, schema)
				if err != nil {
					result.SourceError = err.Error()
					break
				}
				result.SourceTableCount += len(rels)
			}
		}
		result.SourceLatencyMs = time.Since(start).Milliseconds()
	}()

	go func() {
		defer wg.Done()
		if o.config.IsStdout() {
			result.TargetWritable = true
			return
		}
		if err := checkWritableDir(filepath.Dir(o.config.Target.Path)); err != nil {
			result.TargetError = err.Error()
		} else {
			result.TargetWritable = true
		}
	}()

	wg.Wait()

	result.Healthy = result.SourceConnected && result.SourceError == "" && result.TargetWritable
	return result, nil
}

// checkWritableDir creates and removes a scratch file in dir.
func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".pg2sqlite-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// DryRunResult is the migration plan without any destination writes.
type DryRunResult struct {
	Driver          string        `json:"driver"`
	Schemas         []string      `json:"schemas"`
	Destination     string        `json:"destination"`
	Mode            string        `json:"mode"`
	TotalTables     int           `json:"total_tables"`
	TotalViews      int           `json:"total_views"`
	TotalApproxRows int64         `json:"total_approx_rows"`
	Tables          []DryRunTable `json:"tables"`
	Views           []string      `json:"views,omitempty"`
}

// DryRunTable is one table of the plan, in load order.
type DryRunTable struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	ApproxRows  int64  `json:"approx_rows"`
	Columns     int    `json:"columns"`
	HasPK       bool   `json:"has_pk"`
	ForeignKeys int    `json:"foreign_keys"`
}

// DryRun introspects every schema and reports what a run would create,
// failing the same way a real run would on conflicts, cycles or unmapped
// types.
func (o *Orchestrator) DryRun(ctx context.Context) (*DryRunResult, error) {
	logging.Info("Performing dry run (nothing will be written)...")

	p, err := o.prepare(ctx)
	if err != nil {
		return nil, err
	}

	result := &DryRunResult{
		Driver:      o.src.DriverName(),
		Schemas:     o.config.Source.Schemas,
		Destination: o.config.Target.Path,
		Mode:        o.config.Migration.Mode,
	}
	for _, c := range p.catalogs {
		result.TotalTables += len(c.Tables)
		result.TotalApproxRows += c.TotalApproxRows()
		for _, t := range c.OrderedTables() {
			result.Tables = append(result.Tables, dryRunTable(c, t))
		}
		if !o.config.Migration.NoViews {
			for _, v := range c.OrderedViews() {
				result.Views = append(result.Views, v.Name)
			}
		}
	}
	result.TotalViews = len(result.Views)
	return result, nil
}

func dryRunTable(c *catalog.Catalog, t *catalog.Table) DryRunTable {
	return DryRunTable{
		Schema:      c.Schema,
		Name:        t.Name,
		ApproxRows:  t.ApproxRows,
		Columns:     len(t.Columns),
		HasPK:       t.PrimaryKey != nil,
		ForeignKeys: len(t.ForeignKeys),
	}
}
