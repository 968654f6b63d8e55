package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/decision"
)

// RecoverConfig holds the parameters for an emergency jackpot recovery.
// Exactly one of AuthorityKeyfile or AuthorityKey must be set.
type RecoverConfig struct {
	TierID           uint8
	AuthorityKeyfile string
	AuthorityKey     string
}

// Recover signs a recovery authorization with the settlement authority's key
// and applies it, sweeping an idle tier's jackpot to the treasury. The store
// enforces the idle window; this command does not bypass it.
func Recover(ctx context.Context, log *slog.Logger, connStr string, cfg RecoverConfig) error {
	key, err := loadAuthorityKey(cfg.AuthorityKeyfile, cfg.AuthorityKey)
	if err != nil {
		return err
	}

	issuedAt := time.Now().UTC()
	sig, err := decision.SignRecovery(key, cfg.TierID, issuedAt)
	if err != nil {
		return err
	}

	pool, store, err := openStore(ctx, log, connStr)
	if err != nil {
		return err
	}
	defer pool.Close()

	receipt, err := store.Recover(ctx, cfg.TierID, sig, issuedAt)
	if err != nil {
		return fmt.Errorf("failed to recover tier %d: %w", cfg.TierID, err)
	}

	log.Info("jackpot recovered",
		"tier", cfg.TierID,
		"receipt_id", receipt.ID.String(),
		"amount", receipt.Amount,
	)
	return nil
}

func loadAuthorityKey(keyfile, keyBase58 string) (solana.PrivateKey, error) {
	switch {
	case keyfile != "" && keyBase58 != "":
		return nil, fmt.Errorf("specify either --authority-keyfile or --authority-key, not both")
	case keyfile != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keyfile)
		if err != nil {
			return nil, fmt.Errorf("failed to load authority keyfile: %w", err)
		}
		return key, nil
	case keyBase58 != "":
		key, err := solana.PrivateKeyFromBase58(keyBase58)
		if err != nil {
			return nil, fmt.Errorf("invalid authority private key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("an authority key is required (--authority-keyfile or --authority-key)")
	}
}
