package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrentPrice_KnownValues(t *testing.T) {
	t.Parallel()

	// 10 USDC base fee at 6 decimals, truncating fixed point.
	tests := []struct {
		name    string
		baseFee uint64
		entries uint64
		want    uint64
	}{
		{name: "zero entries is base fee", baseFee: 10_000_000, entries: 0, want: 10_000_000},
		{name: "one entry", baseFee: 10_000_000, entries: 1, want: 10_078_000},
		{name: "two entries", baseFee: 10_000_000, entries: 2, want: 10_156_608},
		{name: "base fee one", baseFee: 1, entries: 1, want: 1},
		{name: "zero base fee", baseFee: 0, entries: 100, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := CurrentPrice(tt.baseFee, tt.entries)
			if got != tt.want {
				t.Errorf("CurrentPrice(%d, %d) = %d, want %d", tt.baseFee, tt.entries, got, tt.want)
			}
		})
	}
}

func TestCurrentPrice_Monotonic(t *testing.T) {
	t.Parallel()

	prev := CurrentPrice(10_000_000, 0)
	for n := uint64(1); n <= 1000; n++ {
		p := CurrentPrice(10_000_000, n)
		if p < prev {
			t.Fatalf("price decreased at n=%d: %d < %d", n, p, prev)
		}
		prev = p
	}
}

func TestCurrentPrice_SquareAndMultiplyMatchesIterative(t *testing.T) {
	t.Parallel()

	// The exponentiation must agree with applying one multiply per entry,
	// since that is how the original fee schedule is defined.
	iterative := func(baseFee, n uint64) uint64 {
		p := baseFee
		for i := uint64(0); i < n; i++ {
			p = CurrentPrice(p, 1)
		}
		return p
	}

	for _, n := range []uint64{0, 1, 2, 3, 4, 5, 8, 16} {
		fast := CurrentPrice(10_000_000, n)
		slow := iterative(10_000_000, n)
		// Truncation points differ between the two evaluation orders, so
		// allow up to one unit of drift per multiplication.
		diff := int64(fast) - int64(slow)
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, uint64(diff), 2*n+2, "n=%d fast=%d slow=%d", n, fast, slow)
	}
}

func TestCurrentPrice_SaturatesAtMaxUint64(t *testing.T) {
	t.Parallel()

	// 1.0078^n grows without bound; very large counters must clamp instead
	// of wrapping.
	assert.Equal(t, uint64(math.MaxUint64), CurrentPrice(10_000_000, 6_000))
	assert.Equal(t, uint64(math.MaxUint64), CurrentPrice(1, 1_000_000))
	assert.Equal(t, uint64(math.MaxUint64), CurrentPrice(math.MaxUint64, math.MaxUint64))
}

func TestSplitAmount_KnownValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		amount       uint64
		wantJackpot  uint64
		wantTreasury uint64
	}{
		{amount: 10_000_000, wantJackpot: 6_000_000, wantTreasury: 4_000_000},
		{amount: 10_078_000, wantJackpot: 6_046_800, wantTreasury: 4_031_200},
		{amount: 1, wantJackpot: 1, wantTreasury: 0},
		{amount: 2, wantJackpot: 2, wantTreasury: 0},
		{amount: 3, wantJackpot: 2, wantTreasury: 1},
		{amount: 0, wantJackpot: 0, wantTreasury: 0},
	}

	for _, tt := range tests {
		jackpot, treasury := SplitAmount(tt.amount)
		assert.Equal(t, tt.wantJackpot, jackpot, "amount=%d", tt.amount)
		assert.Equal(t, tt.wantTreasury, treasury, "amount=%d", tt.amount)
	}
}

func TestSplitAmount_Conservation(t *testing.T) {
	t.Parallel()

	// No unit may be created or destroyed, and truncation always favors the
	// jackpot.
	amounts := []uint64{1, 2, 3, 99, 100, 101, 10_078_000, math.MaxUint64}
	for _, amount := range amounts {
		jackpot, treasury := SplitAmount(amount)
		if jackpot+treasury != amount {
			t.Errorf("SplitAmount(%d): %d + %d != %d", amount, jackpot, treasury, amount)
		}
		if jackpot < treasury {
			t.Errorf("SplitAmount(%d): jackpot %d below treasury %d", amount, jackpot, treasury)
		}
	}
}
