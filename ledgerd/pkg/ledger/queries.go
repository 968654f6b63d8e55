package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
)

// GetRegistry returns the current registry state for a tier.
func (s *Store) GetRegistry(ctx context.Context, tierID uint8) (*Registry, error) {
	if err := s.validTier(tierID); err != nil {
		return nil, err
	}
	row := s.pool.QueryRow(ctx, `
		SELECT tier_id, base_fee, jackpot_balance, total_entries, round_entries,
		       settlement_authority, jackpot_destination, treasury_destination,
		       last_activity_at, created_at
		FROM bounty_registries
		WHERE tier_id = $1
	`, int16(tierID))
	reg, err := scanRegistry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: tier %d", ErrRegistryNotFound, tierID)
		}
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	return reg, nil
}

// Price returns the current entry price for a tier.
func (s *Store) Price(ctx context.Context, tierID uint8) (uint64, error) {
	reg, err := s.GetRegistry(ctx, tierID)
	if err != nil {
		return 0, err
	}
	return CurrentPrice(reg.BaseFee, s.priceExponent(reg)), nil
}

// GetEntry returns a specific entry record; clients use this to confirm a
// payment landed.
func (s *Store) GetEntry(ctx context.Context, tierID uint8, payer solana.PublicKey, nonce uint64) (*Entry, error) {
	if err := s.validTier(tierID); err != nil {
		return nil, err
	}
	var (
		entry                                  Entry
		tier                                   int16
		n, amount, jackpotShare, treasuryShare int64
		payerStr                               string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT tier_id, payer, nonce, amount_paid, jackpot_share, treasury_share, paid_at
		FROM entry_ledger
		WHERE tier_id = $1 AND payer = $2 AND nonce = $3
	`, int16(tierID), payer.String(), int64(nonce)).Scan(
		&tier, &payerStr, &n, &amount, &jackpotShare, &treasuryShare, &entry.PaidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: tier %d payer %s nonce %d", ErrEntryNotFound, tierID, payer, nonce)
		}
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	pk, err := solana.PublicKeyFromBase58(payerStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payer key: %w", err)
	}
	entry.TierID = uint8(tier)
	entry.Payer = pk
	entry.Nonce = uint64(n)
	entry.AmountPaid = uint64(amount)
	entry.JackpotShare = uint64(jackpotShare)
	entry.TreasuryShare = uint64(treasuryShare)
	return &entry, nil
}

// GetAccount returns a funding-asset account balance.
func (s *Store) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	var (
		balance   int64
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT balance, updated_at FROM accounts WHERE address = $1
	`, address.String()).Scan(&balance, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &Account{Address: address, Balance: uint64(balance), UpdatedAt: updatedAt}, nil
}

// ListReceipts returns the payout audit trail for a tier, newest first.
func (s *Store) ListReceipts(ctx context.Context, tierID uint8, limit int) ([]Receipt, error) {
	if err := s.validTier(tierID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tier_id, kind, winner, amount, total_entries, settled_at
		FROM settlement_receipts
		WHERE tier_id = $1
		ORDER BY settled_at DESC
		LIMIT $2
	`, int16(tierID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]Receipt, 0, limit)
	for rows.Next() {
		var (
			r                    Receipt
			tier                 int16
			kind                 string
			winner               *string
			amount, totalEntries int64
		)
		if err := rows.Scan(&r.ID, &tier, &kind, &winner, &amount, &totalEntries, &r.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		r.TierID = uint8(tier)
		r.Kind = ReceiptKind(kind)
		r.Amount = uint64(amount)
		r.TotalEntries = uint64(totalEntries)
		if winner != nil {
			pk, err := solana.PublicKeyFromBase58(*winner)
			if err != nil {
				return nil, fmt.Errorf("failed to parse winner key: %w", err)
			}
			r.Winner = &pk
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// StaleTiers returns the ids of tiers holding a non-empty jackpot whose last
// activity is older than the recovery window. Used by the monitor and by
// operators deciding whether to run a recovery.
func (s *Store) StaleTiers(ctx context.Context) ([]uint8, error) {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.RecoveryWindow)
	rows, err := s.pool.Query(ctx, `
		SELECT tier_id FROM bounty_registries
		WHERE jackpot_balance > 0 AND last_activity_at < $1
		ORDER BY tier_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale tiers: %w", err)
	}
	defer rows.Close()

	var tiers []uint8
	for rows.Next() {
		var tier int16
		if err := rows.Scan(&tier); err != nil {
			return nil, fmt.Errorf("failed to scan tier id: %w", err)
		}
		tiers = append(tiers, uint8(tier))
	}
	return tiers, rows.Err()
}

func scanRegistry(row pgx.Row) (*Registry, error) {
	var (
		reg                                   Registry
		tier                                  int16
		baseFee, jackpot, total, round        int64
		authorityStr, jackpotStr, treasuryStr string
	)
	if err := row.Scan(&tier, &baseFee, &jackpot, &total, &round,
		&authorityStr, &jackpotStr, &treasuryStr,
		&reg.LastActivityAt, &reg.CreatedAt); err != nil {
		return nil, err
	}
	authority, err := solana.PublicKeyFromBase58(authorityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authority key: %w", err)
	}
	jackpotDest, err := solana.PublicKeyFromBase58(jackpotStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jackpot destination key: %w", err)
	}
	treasuryDest, err := solana.PublicKeyFromBase58(treasuryStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse treasury destination key: %w", err)
	}
	reg.TierID = uint8(tier)
	reg.BaseFee = uint64(baseFee)
	reg.JackpotBalance = uint64(jackpot)
	reg.TotalEntries = uint64(total)
	reg.RoundEntries = uint64(round)
	reg.SettlementAuthority = authority
	reg.JackpotDestination = jackpotDest
	reg.TreasuryDestination = treasuryDest
	return &reg, nil
}
