package admin

import (
	"context"
	"fmt"
	"log/slog"
)

// Price prints the current entry price and registry state for a tier.
func Price(ctx context.Context, log *slog.Logger, connStr string, tierID uint8) error {
	pool, store, err := openStore(ctx, log, connStr)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg, err := store.GetRegistry(ctx, tierID)
	if err != nil {
		return fmt.Errorf("failed to read tier %d registry: %w", tierID, err)
	}
	price, err := store.Price(ctx, tierID)
	if err != nil {
		return fmt.Errorf("failed to compute tier %d price: %w", tierID, err)
	}

	log.Info("tier price",
		"tier", reg.TierID,
		"base_fee", reg.BaseFee,
		"current_price", price,
		"total_entries", reg.TotalEntries,
		"round_entries", reg.RoundEntries,
		"jackpot_balance", reg.JackpotBalance,
		"last_activity_at", reg.LastActivityAt,
	)
	return nil
}
