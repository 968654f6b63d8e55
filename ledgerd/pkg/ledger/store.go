package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/decision"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/metrics"
)

type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
	Clock  clockwork.Clock

	// MinTier/MaxTier bound the valid tier range (1..=4 in the reference
	// deployment).
	MinTier uint8
	MaxTier uint8

	// RecoveryWindow is how long a tier must sit idle (no entries, no
	// settlement) before the authority may recover the jackpot.
	RecoveryWindow time.Duration

	// MaxDecisionAge bounds how old a signed decision or recovery
	// authorization may be before it is refused as stale.
	MaxDecisionAge time.Duration

	// PriceResetOnSettle switches the price-escalation exponent from the
	// lifetime entry counter to the per-round counter, resetting prices
	// after every settlement. Off by default: the observed economic
	// behavior is that prices never reset.
	PriceResetOnSettle bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MinTier == 0 {
		cfg.MinTier = 1
	}
	if cfg.MaxTier == 0 {
		cfg.MaxTier = 4
	}
	if cfg.MaxTier < cfg.MinTier {
		return errors.New("max tier must not be below min tier")
	}
	if cfg.RecoveryWindow == 0 {
		cfg.RecoveryWindow = 24 * time.Hour
	}
	if cfg.MaxDecisionAge == 0 {
		cfg.MaxDecisionAge = 15 * time.Minute
	}
	return nil
}

// Store owns all bounty ledger state. Every operation runs as one
// transaction with the registry row locked FOR UPDATE, so concurrent
// submissions against the same tier serialize and a loser fails cleanly with
// no partial fund movement. Different tiers do not contend.
type Store struct {
	log   *slog.Logger
	cfg   Config
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

func NewStore(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log:   cfg.Logger,
		cfg:   cfg,
		pool:  cfg.Pool,
		clock: cfg.Clock,
	}, nil
}

// RecoveryWindow returns the configured inactivity window for recovery.
func (s *Store) RecoveryWindow() time.Duration {
	return s.cfg.RecoveryWindow
}

func (s *Store) validTier(tierID uint8) error {
	if tierID < s.cfg.MinTier || tierID > s.cfg.MaxTier {
		return fmt.Errorf("%w: tier %d not in [%d, %d]", ErrInvalidTier, tierID, s.cfg.MinTier, s.cfg.MaxTier)
	}
	return nil
}

// priceExponent selects the counter driving price escalation.
func (s *Store) priceExponent(reg *Registry) uint64 {
	if s.cfg.PriceResetOnSettle {
		return reg.RoundEntries
	}
	return reg.TotalEntries
}

// Initialize creates the bounty registry for a tier along with its two
// destination accounts. Re-initializing an existing tier is rejected, never
// silently accepted: a silent re-init could reset an in-flight jackpot.
func (s *Store) Initialize(ctx context.Context, tierID uint8, baseFee uint64, authority, jackpotDest, treasuryDest solana.PublicKey) (*Registry, error) {
	if err := s.validTier(tierID); err != nil {
		return nil, err
	}
	if baseFee == 0 {
		return nil, fmt.Errorf("%w: base fee must be positive", ErrInvalidTier)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := s.clock.Now().UTC()
	tag, err := tx.Exec(ctx, `
		INSERT INTO bounty_registries (tier_id, base_fee, settlement_authority, jackpot_destination, treasury_destination, last_activity_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (tier_id) DO NOTHING
	`, int16(tierID), int64(baseFee), authority.String(), jackpotDest.String(), treasuryDest.String(), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert registry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: tier %d", ErrRegistryExists, tierID)
	}

	for _, dest := range []solana.PublicKey{jackpotDest, treasuryDest} {
		if _, err := tx.Exec(ctx, `
			INSERT INTO accounts (address, balance) VALUES ($1, 0)
			ON CONFLICT (address) DO NOTHING
		`, dest.String()); err != nil {
			return nil, fmt.Errorf("failed to create destination account: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("ledger: registry initialized",
		"tier", tierID,
		"base_fee", baseFee,
		"authority", authority.String(),
	)
	metrics.SetTierState(tierID, 0, 0)

	return &Registry{
		TierID:              tierID,
		BaseFee:             baseFee,
		SettlementAuthority: authority,
		JackpotDestination:  jackpotDest,
		TreasuryDestination: treasuryDest,
		LastActivityAt:      now,
		CreatedAt:           now,
	}, nil
}

// ProcessEntry accepts one payment: it checks the escalating price, moves
// value from the payer to the jackpot and treasury destinations, records the
// write-once entry, and bumps the registry counters. All of it commits or
// none of it does; there is no compensating transaction.
func (s *Store) ProcessEntry(ctx context.Context, tierID uint8, payer solana.PublicKey, nonce uint64, amountPaid uint64) (entry *Entry, err error) {
	defer func() { metrics.RecordEntry(tierID, amountPaid, err) }()

	if err := s.validTier(tierID); err != nil {
		return nil, err
	}
	if amountPaid == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientPayment)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	reg, err := lockRegistry(ctx, tx, tierID)
	if err != nil {
		return nil, err
	}

	price := CurrentPrice(reg.BaseFee, s.priceExponent(reg))
	if amountPaid < price {
		return nil, fmt.Errorf("%w: amount %d, current price %d", ErrInsufficientPayment, amountPaid, price)
	}

	jackpotShare, treasuryShare := SplitAmount(amountPaid)
	now := s.clock.Now().UTC()

	// Write-once record. Zero rows affected means the (tier, payer, nonce)
	// slot is already taken and the whole operation aborts.
	tag, err := tx.Exec(ctx, `
		INSERT INTO entry_ledger (tier_id, payer, nonce, amount_paid, jackpot_share, treasury_share, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tier_id, payer, nonce) DO NOTHING
	`, int16(tierID), payer.String(), int64(nonce), int64(amountPaid), int64(jackpotShare), int64(treasuryShare), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: tier %d payer %s nonce %d", ErrDuplicateEntry, tierID, payer, nonce)
	}

	if err := debit(ctx, tx, payer, amountPaid); err != nil {
		return nil, err
	}
	if err := credit(ctx, tx, reg.JackpotDestination, jackpotShare, now); err != nil {
		return nil, err
	}
	if err := credit(ctx, tx, reg.TreasuryDestination, treasuryShare, now); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bounty_registries
		SET jackpot_balance = jackpot_balance + $2,
		    total_entries = total_entries + 1,
		    round_entries = round_entries + 1,
		    last_activity_at = $3
		WHERE tier_id = $1
	`, int16(tierID), int64(jackpotShare), now); err != nil {
		return nil, fmt.Errorf("failed to update registry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Debug("ledger: entry accepted",
		"tier", tierID,
		"payer", payer.String(),
		"nonce", nonce,
		"amount", amountPaid,
		"jackpot_share", jackpotShare,
	)
	metrics.SetTierState(tierID, reg.JackpotBalance+jackpotShare, reg.TotalEntries+1)

	return &Entry{
		TierID:        tierID,
		Payer:         payer,
		Nonce:         nonce,
		AmountPaid:    amountPaid,
		JackpotShare:  jackpotShare,
		TreasuryShare: treasuryShare,
		PaidAt:        now,
	}, nil
}

// Settle applies a signed decision: it verifies the signature against the
// registry's settlement authority, checks the freshness token against current
// state, transfers the full jackpot to the winner, and resets the jackpot for
// the next round. The lifetime entry counter is left untouched so price
// escalation continues across rounds.
func (s *Store) Settle(ctx context.Context, tierID uint8, winner solana.PublicKey, sig []byte, payload []byte) (receipt *Receipt, err error) {
	defer func() { metrics.RecordSettlement(tierID, err) }()

	if err := s.validTier(tierID); err != nil {
		return nil, err
	}

	d, err := decision.Unmarshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	reg, err := lockRegistry(ctx, tx, tierID)
	if err != nil {
		return nil, err
	}

	if !decision.Verify(reg.SettlementAuthority, payload, sig) {
		return nil, fmt.Errorf("%w: signature does not verify against authority %s", ErrUnauthorized, reg.SettlementAuthority)
	}
	if d.TierID != tierID || !d.Winner.Equals(winner) {
		return nil, fmt.Errorf("%w: decision names tier %d winner %s", ErrUnauthorized, d.TierID, d.Winner)
	}
	if d.TotalEntries != reg.TotalEntries {
		return nil, fmt.Errorf("%w: decision freshness token %d, registry at %d", ErrStaleDecision, d.TotalEntries, reg.TotalEntries)
	}
	now := s.clock.Now().UTC()
	if age := now.Sub(time.Unix(d.IssuedAt, 0)); age > s.cfg.MaxDecisionAge || age < -s.cfg.MaxDecisionAge {
		return nil, fmt.Errorf("%w: decision issued %s ago", ErrStaleDecision, age.Round(time.Second))
	}
	if reg.JackpotBalance == 0 {
		return nil, fmt.Errorf("%w: tier %d", ErrEmptyJackpot, tierID)
	}

	receipt, err = s.payOut(ctx, tx, reg, ReceiptKindSettlement, &winner, winner, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Info("ledger: jackpot settled",
		"tier", tierID,
		"winner", winner.String(),
		"amount", receipt.Amount,
		"receipt", receipt.ID.String(),
	)
	metrics.SetTierState(tierID, 0, reg.TotalEntries)
	return receipt, nil
}

// Recover is the authority-gated, time-gated fallback for a stuck settlement
// pipeline: after the inactivity window it moves the jackpot to the treasury
// destination. It is the only way jackpot funds move without a signed
// decision, so it is logged loudly and recorded under its own receipt kind.
func (s *Store) Recover(ctx context.Context, tierID uint8, sig []byte, issuedAt time.Time) (receipt *Receipt, err error) {
	defer func() { metrics.RecordRecovery(tierID, err) }()

	if err := s.validTier(tierID); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	reg, err := lockRegistry(ctx, tx, tierID)
	if err != nil {
		return nil, err
	}

	if !decision.VerifyRecovery(reg.SettlementAuthority, tierID, issuedAt, sig) {
		return nil, fmt.Errorf("%w: recovery authorization does not verify against authority %s", ErrUnauthorized, reg.SettlementAuthority)
	}
	now := s.clock.Now().UTC()
	if age := now.Sub(issuedAt); age > s.cfg.MaxDecisionAge || age < -s.cfg.MaxDecisionAge {
		return nil, fmt.Errorf("%w: recovery authorization issued %s ago", ErrStaleDecision, age.Round(time.Second))
	}
	if idle := now.Sub(reg.LastActivityAt); idle < s.cfg.RecoveryWindow {
		return nil, fmt.Errorf("%w: tier %d idle %s of required %s", ErrRecoveryTooEarly, tierID, idle.Round(time.Second), s.cfg.RecoveryWindow)
	}
	if reg.JackpotBalance == 0 {
		return nil, fmt.Errorf("%w: tier %d", ErrEmptyJackpot, tierID)
	}

	receipt, err = s.payOut(ctx, tx, reg, ReceiptKindRecovery, nil, reg.TreasuryDestination, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.Warn("ledger: emergency recovery executed",
		"tier", tierID,
		"amount", receipt.Amount,
		"recipient", reg.TreasuryDestination.String(),
		"receipt", receipt.ID.String(),
	)
	metrics.SetTierState(tierID, 0, reg.TotalEntries)
	return receipt, nil
}

// payOut moves the full jackpot balance to recipient, zeroes the jackpot and
// per-round counter, and writes the audit receipt. Caller holds the registry
// row lock and commits.
func (s *Store) payOut(ctx context.Context, tx pgx.Tx, reg *Registry, kind ReceiptKind, winner *solana.PublicKey, recipient solana.PublicKey, now time.Time) (*Receipt, error) {
	amount := reg.JackpotBalance

	// The jackpot destination account must hold at least the tracked
	// balance; if it does not, the books are corrupt and we abort.
	if err := debit(ctx, tx, reg.JackpotDestination, amount); err != nil {
		return nil, fmt.Errorf("jackpot destination underfunded, refusing payout: %w", err)
	}
	if err := credit(ctx, tx, recipient, amount, now); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bounty_registries
		SET jackpot_balance = 0,
		    round_entries = 0,
		    last_activity_at = $2
		WHERE tier_id = $1
	`, int16(reg.TierID), now); err != nil {
		return nil, fmt.Errorf("failed to reset registry: %w", err)
	}

	receipt := &Receipt{
		ID:           uuid.New(),
		TierID:       reg.TierID,
		Kind:         kind,
		Winner:       winner,
		Amount:       amount,
		TotalEntries: reg.TotalEntries,
		SettledAt:    now,
	}
	var winnerStr *string
	if winner != nil {
		w := winner.String()
		winnerStr = &w
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO settlement_receipts (id, tier_id, kind, winner, amount, total_entries, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, receipt.ID, int16(reg.TierID), string(kind), winnerStr, int64(amount), int64(reg.TotalEntries), now); err != nil {
		return nil, fmt.Errorf("failed to insert receipt: %w", err)
	}
	return receipt, nil
}

// Credit adds funds to an account, creating it if absent. This is the
// operator on-ramp for the funding asset; ledger operations themselves only
// move existing balances.
func (s *Store) Credit(ctx context.Context, address solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return errors.New("amount must be positive")
	}
	if err := credit(ctx, s.pool, address, amount, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.log.Info("ledger: account credited", "address", address.String(), "amount", amount)
	return nil
}

// execer is satisfied by both pgx.Tx and *pgxpool.Pool.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func lockRegistry(ctx context.Context, tx pgx.Tx, tierID uint8) (*Registry, error) {
	row := tx.QueryRow(ctx, `
		SELECT tier_id, base_fee, jackpot_balance, total_entries, round_entries,
		       settlement_authority, jackpot_destination, treasury_destination,
		       last_activity_at, created_at
		FROM bounty_registries
		WHERE tier_id = $1
		FOR UPDATE
	`, int16(tierID))
	reg, err := scanRegistry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: tier %d", ErrRegistryNotFound, tierID)
		}
		return nil, fmt.Errorf("failed to lock registry: %w", err)
	}
	return reg, nil
}

// debit subtracts amount from an account iff the balance covers it. The
// guarded UPDATE makes "insufficient funds" a clean zero-row outcome instead
// of a constraint violation.
func debit(ctx context.Context, db execer, address solana.PublicKey, amount uint64) error {
	tag, err := db.Exec(ctx, `
		UPDATE accounts
		SET balance = balance - $2, updated_at = NOW()
		WHERE address = $1 AND balance >= $2
	`, address.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s needs %d", ErrInsufficientFunds, address, amount)
	}
	return nil
}

func credit(ctx context.Context, db execer, address solana.PublicKey, amount uint64, now time.Time) error {
	if _, err := db.Exec(ctx, `
		INSERT INTO accounts (address, balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
	`, address.String(), int64(amount), now); err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	return nil
}
