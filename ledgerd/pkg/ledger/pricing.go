package ledger

import (
	"math"

	"github.com/holiman/uint256"
)

// Price escalation: each accepted entry multiplies the price by 1.0078.
// Computed in fixed point (scale 1e12) with truncation toward zero so a
// long-running registry never drifts the way repeated float multiplication
// would. Clients should over-supply at the boundary; the ledger truncates.
const (
	priceScale  = 1_000_000_000_000 // 1e12
	priceGrowth = 1_007_800_000_000 // 1.0078 at priceScale

	// treasurySharePct of every entry goes to the buyback treasury; the
	// jackpot takes the rest, including any division remainder, so the
	// treasury is never over-paid and no unit is created or destroyed.
	treasurySharePct = 40
)

// growthCeiling bounds the fixed-point factor. Anything above it already
// prices past MaxUint64 for a base fee of 1, so clamping keeps the
// exponentiation bounded without changing any representable price.
var growthCeiling = new(uint256.Int).Lsh(uint256.NewInt(1), 104)

// growthFactor computes 1.0078^n at priceScale by square-and-multiply,
// truncating after every step.
func growthFactor(n uint64) *uint256.Int {
	result := uint256.NewInt(priceScale)
	base := uint256.NewInt(priceGrowth)
	scale := uint256.NewInt(priceScale)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, base)
			result.Div(result, scale)
			if result.Gt(growthCeiling) {
				result.Set(growthCeiling)
			}
		}
		n >>= 1
		if n == 0 {
			break
		}
		base.Mul(base, base)
		base.Div(base, scale)
		if base.Gt(growthCeiling) {
			base.Set(growthCeiling)
		}
	}
	return result
}

// CurrentPrice returns baseFee * 1.0078^entries, truncated toward zero and
// saturating at MaxUint64.
func CurrentPrice(baseFee uint64, entries uint64) uint64 {
	p := growthFactor(entries)
	p.Mul(p, uint256.NewInt(baseFee))
	p.Div(p, uint256.NewInt(priceScale))
	if !p.IsUint64() {
		return math.MaxUint64
	}
	return p.Uint64()
}

// SplitAmount divides an accepted payment into its jackpot and treasury
// shares. Invariant: jackpot + treasury == amount exactly.
func SplitAmount(amount uint64) (jackpot, treasury uint64) {
	t := uint256.NewInt(amount)
	t.Mul(t, uint256.NewInt(treasurySharePct))
	t.Div(t, uint256.NewInt(100))
	treasury = t.Uint64()
	jackpot = amount - treasury
	return jackpot, treasury
}
