package types

import "fmt"

// MicroAmount is a fixed-point monetary amount: 1 coin == MicroPerCoin
// micro-units. All consensus arithmetic (balances, fees, subsidies) is
// done in MicroAmount to avoid the source implementation's floating-point
// conservation checks (which compared amounts with a dead `abs(x-y) < 0`
// predicate). See SPEC_FULL.md §4.0.
type MicroAmount int64

// MicroPerCoin is the number of micro-units in one coin. 1e8 gives enough
// precision to exactly represent the protocol's sub-cent fee rates
// (DEFAULT_FEE_RATE = 0.00001 coin/byte) and the 5-decimal signature
// message format (spec.md §4.4 rule 5) without rounding drift.
const MicroPerCoin MicroAmount = 100_000_000

// Coins returns the MicroAmount for a whole number of coins (e.g.
// Coins(50) for 50 coins, which is 50*MicroPerCoin micro-units).
func Coins(whole int64) MicroAmount {
	return MicroAmount(whole) * MicroPerCoin
}

// Float64 returns the amount as a float64 number of coins, for display
// and for legacy wire compatibility with callers that still speak decimal
// coin amounts (e.g. the external API surface).
func (m MicroAmount) Float64() float64 {
	return float64(m) / float64(MicroPerCoin)
}

// String renders the amount as a fixed 4-fraction-digit decimal string,
// matching the canonical float format used where amounts must be rendered
// as text for hashing or signing (spec.md §4.1/§4.4).
func (m MicroAmount) String() string {
	return fmt.Sprintf("%.4f", m.Float64())
}

// AmountFromFloat converts a decimal coin amount (as received from an
// external API caller) into fixed-point micro-units.
func AmountFromFloat(f float64) MicroAmount {
	return MicroAmount(int64(f*float64(MicroPerCoin) + 0.5))
}

// SignatureDecimal renders m the way the signed message format requires:
// m + 0.00001 coins, fixed to 5 fraction digits (spec.md §4.4 rule 5,
// "Open Question #5" — reproduced bit-exactly for wire compatibility).
func (m MicroAmount) SignatureDecimal() string {
	return fmt.Sprintf("%.5f", m.Float64()+0.00001)
}
