package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/atlas-wms/atlas-wms/internal/jobs"
)

// LedgerSums aggregates receipt quantities per SKU.
type LedgerSums interface {
	SumBySKU(ctx context.Context) (map[string]int64, error)
}

// InventoryTotals reads on-hand quantities per SKU.
type InventoryTotals interface {
	OnHandBySKU(ctx context.Context) (map[string]int64, error)
}

// IntegrityChecker verifies that the append-only ledger still explains the
// inventory on-hand totals. A mismatch means a write path bypassed the
// receipt posting transaction.
type IntegrityChecker struct {
	ledger    LedgerSums
	inventory InventoryTotals
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

// NewIntegrityChecker constructs the checker.
func NewIntegrityChecker(ledger LedgerSums, inventory InventoryTotals, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityChecker {
	return &IntegrityChecker{ledger: ledger, inventory: inventory, logger: logger, metrics: metrics}
}

// Handle processes TaskLedgerIntegrity tasks.
func (c *IntegrityChecker) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := c.metrics.Track("ledger_integrity")
	return tracker.End(c.check(ctx))
}

func (c *IntegrityChecker) check(ctx context.Context) error {
	sums, err := c.ledger.SumBySKU(ctx)
	if err != nil {
		return err
	}
	totals, err := c.inventory.OnHandBySKU(ctx)
	if err != nil {
		return err
	}

	mismatches := 0
	for sku, onHand := range totals {
		if sums[sku] != onHand {
			mismatches++
			c.logger.Error("ledger mismatch",
				slog.String("sku", sku),
				slog.Int64("ledger_sum", sums[sku]),
				slog.Int64("on_hand", onHand))
		}
	}
	for sku, sum := range sums {
		if _, ok := totals[sku]; !ok && sum != 0 {
			mismatches++
			c.logger.Error("ledger entries without inventory record",
				slog.String("sku", sku),
				slog.Int64("ledger_sum", sum))
		}
	}
	c.metrics.AddMismatches(mismatches)
	if mismatches > 0 {
		return fmt.Errorf("ledger integrity: %d mismatched SKUs", mismatches)
	}
	return nil
}
