package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// InitTierConfig holds the parameters for creating a bounty tier registry.
type InitTierConfig struct {
	TierID       uint8
	BaseFee      uint64
	Authority    string
	JackpotDest  string
	TreasuryDest string
}

// InitTier creates a bounty registry for a tier. Fails if the tier already
// has a registry.
func InitTier(ctx context.Context, log *slog.Logger, connStr string, cfg InitTierConfig) error {
	authority, err := solana.PublicKeyFromBase58(cfg.Authority)
	if err != nil {
		return fmt.Errorf("invalid authority key: %w", err)
	}
	jackpotDest, err := solana.PublicKeyFromBase58(cfg.JackpotDest)
	if err != nil {
		return fmt.Errorf("invalid jackpot destination key: %w", err)
	}
	treasuryDest, err := solana.PublicKeyFromBase58(cfg.TreasuryDest)
	if err != nil {
		return fmt.Errorf("invalid treasury destination key: %w", err)
	}

	pool, store, err := openStore(ctx, log, connStr)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg, err := store.Initialize(ctx, cfg.TierID, cfg.BaseFee, authority, jackpotDest, treasuryDest)
	if err != nil {
		return fmt.Errorf("failed to initialize tier %d: %w", cfg.TierID, err)
	}

	log.Info("tier initialized",
		"tier", reg.TierID,
		"base_fee", reg.BaseFee,
		"authority", reg.SettlementAuthority.String(),
		"jackpot_destination", reg.JackpotDestination.String(),
		"treasury_destination", reg.TreasuryDestination.String(),
	)
	return nil
}
