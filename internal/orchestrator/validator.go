package orchestrator

import (
	"context"
	"fmt"

	"github.com/johndauphine/pg2sqlite/internal/catalog"
	"github.com/johndauphine/pg2sqlite/internal/logging"
	"github.com/johndauphine/pg2sqlite/internal/target"
)

// Validate checks row counts between source and destination
func (o *Orchestrator) Validate(ctx context.Context, dst *target.SQLite, catalogs []*catalog.Catalog) error {
	logging.Info("Validation Results:")
	logging.Info("-------------------")

	var failed bool
	for _, c := range catalogs {
		for _, t := range c.OrderedTables() {
			// Query fresh counts from both sides (don't trust the planner estimate)
			sourceCount, err := o.src.RowCount(ctx, c.Schema, t.Name)
			if err != nil {
				logging.Error("%-30s ERROR getting source count: %v", t.Name, err)
				failed = true
				continue
			}

			targetCount, err := dst.RowCount(ctx, t.Name)
			if err != nil {
				logging.Error("%-30s ERROR getting destination count: %v", t.Name, err)
				failed = true
				continue
			}

			if targetCount == sourceCount {
				logging.Info("%-30s OK %d rows", t.Name, targetCount)
			} else {
				logging.Error("%-30s FAIL source=%d destination=%d (diff=%d)",
					t.Name, sourceCount, targetCount, sourceCount-targetCount)
				failed = true
			}
		}
	}

	if failed {
		return fmt.Errorf("row count validation failed")
	}
	return nil
}
