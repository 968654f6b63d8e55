package ledger

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Registry is the per-tier bounty state. One row per difficulty tier;
// all mutations go through the Store's transactional operations.
type Registry struct {
	TierID              uint8            `json:"tier_id"`
	BaseFee             uint64           `json:"base_fee"`
	JackpotBalance      uint64           `json:"jackpot_balance"`
	TotalEntries        uint64           `json:"total_entries"`
	RoundEntries        uint64           `json:"round_entries"`
	SettlementAuthority solana.PublicKey `json:"settlement_authority"`
	JackpotDestination  solana.PublicKey `json:"jackpot_destination"`
	TreasuryDestination solana.PublicKey `json:"treasury_destination"`
	LastActivityAt      time.Time        `json:"last_activity_at"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Entry is a single accepted payment. The (tier, payer, nonce) triple is the
// primary key, so a given triple can be recorded exactly once.
type Entry struct {
	TierID        uint8            `json:"tier_id"`
	Payer         solana.PublicKey `json:"payer"`
	Nonce         uint64           `json:"nonce"`
	AmountPaid    uint64           `json:"amount_paid"`
	JackpotShare  uint64           `json:"jackpot_share"`
	TreasuryShare uint64           `json:"treasury_share"`
	PaidAt        time.Time        `json:"paid_at"`
}

// ReceiptKind distinguishes a normal settlement from an emergency recovery.
// The two paths are separate operations on purpose so recovery use is
// auditable and cannot be conflated with a signed-decision payout.
type ReceiptKind string

const (
	ReceiptKindSettlement ReceiptKind = "settlement"
	ReceiptKindRecovery   ReceiptKind = "recovery"
)

// Receipt records a jackpot payout, either to a winner (settlement) or to the
// treasury (recovery). Winner is nil for recoveries.
type Receipt struct {
	ID           uuid.UUID         `json:"id"`
	TierID       uint8             `json:"tier_id"`
	Kind         ReceiptKind       `json:"kind"`
	Winner       *solana.PublicKey `json:"winner,omitempty"`
	Amount       uint64            `json:"amount"`
	TotalEntries uint64            `json:"total_entries"`
	SettledAt    time.Time         `json:"settled_at"`
}

// Account is a funding-asset balance row, in the smallest currency unit.
type Account struct {
	Address   solana.PublicKey `json:"address"`
	Balance   uint64           `json:"balance"`
	UpdatedAt time.Time        `json:"updated_at"`
}
