// Package nonce hands out per-payer sequence numbers for new payment
// attempts. The counters are advisory: the entry ledger's composite key is
// the real uniqueness guarantee, so Next always reconciles against ledger
// state and a crash between allocation and confirmation costs nothing but a
// retried nonce.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

type Allocator struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewAllocator(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Allocator{log: cfg.Logger, pool: cfg.Pool}, nil
}

// Next returns the next nonce a payer should use. It takes the larger of the
// stored counter and (max confirmed ledger nonce + 1), so a counter that
// lags the ledger, or was never written, still yields a fresh nonce.
func (a *Allocator) Next(ctx context.Context, payer solana.PublicKey) (uint64, error) {
	var next int64
	err := a.pool.QueryRow(ctx, `
		SELECT GREATEST(
			COALESCE((SELECT next_nonce FROM nonce_counters WHERE payer = $1), 0),
			COALESCE((SELECT MAX(nonce) + 1 FROM entry_ledger WHERE payer = $1), 0)
		)
	`, payer.String()).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to query next nonce: %w", err)
	}
	return uint64(next), nil
}

// Confirm advances the counter after a payment has been confirmed on the
// ledger. The GREATEST guard keeps the counter monotonic even when
// confirmations arrive out of order.
func (a *Allocator) Confirm(ctx context.Context, payer solana.PublicKey, nonce uint64) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO nonce_counters (payer, next_nonce)
		VALUES ($1, $2)
		ON CONFLICT (payer) DO UPDATE
		SET next_nonce = GREATEST(nonce_counters.next_nonce, EXCLUDED.next_nonce),
		    updated_at = NOW()
	`, payer.String(), int64(nonce)+1)
	if err != nil {
		return fmt.Errorf("failed to confirm nonce: %w", err)
	}
	a.log.Debug("nonce: confirmed", "payer", payer.String(), "nonce", nonce)
	return nil
}
