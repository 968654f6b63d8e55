package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// Fund credits an account balance. This is the operator on-ramp for player
// deposits; regular entry payments only ever move funds already credited.
func Fund(ctx context.Context, log *slog.Logger, connStr, address string, amount uint64) error {
	key, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid account address: %w", err)
	}

	pool, store, err := openStore(ctx, log, connStr)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := store.Credit(ctx, key, amount); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}

	account, err := store.GetAccount(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read account after credit: %w", err)
	}

	log.Info("account funded", "address", address, "credited", amount, "balance", account.Balance)
	return nil
}
