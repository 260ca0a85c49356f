// Package config holds the node's consensus rules (Params) and its
// per-node runtime settings (Config). Config's defaults come from Default;
// cmd/noded overrides them with command-line flags. No config file is read.
package config

import "github.com/klingnet-chain/klingnet-core/pkg/types"

// Params holds the consensus-critical protocol rules every node must agree
// on bit-for-bit. Unlike Config, Params is never read from a node's local
// config file or flags — it is compiled in, identical for every
// participant, and changing it requires a coordinated upgrade.
//
// Grounded on original_source/backend/core/config.py's Settings class,
// which plays the same role (module-level constants pulled in by the
// block, transaction and fee-rate-estimator models).
type Params struct {
	// BlockSubsidy is the coinbase reward paid at height 0 of each halving
	// era.
	BlockSubsidy types.MicroAmount
	// HalvingInterval is the number of blocks between subsidy halvings.
	HalvingInterval uint64

	// BlockSizeLimit is the maximum size, in bytes, of a block's
	// transaction list encoded with encoding/json.
	BlockSizeLimit int
	// BaseTxSize is the minimum transaction size in bytes used for fee
	// estimation when size cannot be computed directly.
	BaseTxSize int
	// MinFee is the minimum absolute fee accepted for any non-coinbase
	// transaction.
	MinFee types.MicroAmount
	// DefaultFeeRate is the baseline fee rate in coins per byte.
	DefaultFeeRate float64
	// PriorityMultipliers scales DefaultFeeRate for the low/medium/high
	// priority tiers a sender can request.
	PriorityMultipliers map[string]float64

	// MempoolThreshold is the unconfirmed-transaction count above which the
	// fee estimator starts scaling the rate up.
	MempoolThreshold int
	// BlockFullnessThreshold is the recent-block fullness ratio above which
	// the fee estimator starts scaling the rate up.
	BlockFullnessThreshold float64
	// FeeRateUpdateInterval is the minimum number of seconds between fee
	// rate recomputations.
	FeeRateUpdateInterval int

	// TargetBlockTime is the desired number of seconds between blocks.
	TargetBlockTime int
	// DifficultyInterval is the number of blocks between difficulty
	// retargets.
	DifficultyInterval uint64
	// MinRate is a duration in seconds. No code in this repository reads
	// it; block acceptance does not check the time since the previous
	// block against it.
	MinRate float64

	// ChunkSize is the initial number of blocks requested per chunked sync
	// fetch.
	ChunkSize int
	// ChunkTimeout is a duration in seconds. No code in this repository
	// reads it, so it does not bound how long a chunk fetch waits.
	ChunkTimeout int
	// BootNode is the well-known rendezvous node URI.
	BootNode string
}

// DefaultParams returns the protocol rules this implementation ships with.
// Values are ported from original_source/backend/core/config.py's Settings
// defaults, with DifficultyInterval/TargetBlockTime taken from the literal
// values the original's difficulty-retarget routine actually used (9 and 9)
// rather than the unrelated Settings.TARGET_BLOCK_TIME=60 it shadowed.
func DefaultParams() *Params {
	return &Params{
		BlockSubsidy:    types.Coins(50),
		HalvingInterval: 210_000,

		BlockSizeLimit: 1_000_000,
		BaseTxSize:     250,
		MinFee:         types.AmountFromFloat(0.001),
		DefaultFeeRate: 0.00001,
		PriorityMultipliers: map[string]float64{
			"low":    0.8,
			"medium": 1.0,
			"high":   1.5,
		},

		MempoolThreshold:       10_000,
		BlockFullnessThreshold: 0.8,
		FeeRateUpdateInterval:  60,

		TargetBlockTime:    9,
		DifficultyInterval: 9,
		MinRate:            30,

		ChunkSize:    100,
		ChunkTimeout: 30,
		BootNode:     "wss://boot-node.onrender.com",
	}
}

// SubsidyAt returns the coinbase subsidy for a block at the given height,
// halving every HalvingInterval blocks (spec.md §4.3: subsidy(h) =
// BLOCK_SUBSIDY >> (h / HALVING_INTERVAL)).
func (p *Params) SubsidyAt(height uint64) types.MicroAmount {
	halvings := height / p.HalvingInterval
	if halvings >= 63 {
		return 0
	}
	return p.BlockSubsidy >> halvings
}

// PriorityMultiplier returns the fee-rate multiplier for a priority tier,
// falling back to "medium" for an unrecognized tier.
func (p *Params) PriorityMultiplier(priority string) float64 {
	if m, ok := p.PriorityMultipliers[priority]; ok {
		return m
	}
	return p.PriorityMultipliers["medium"]
}

// FeeRateFor returns the effective fee rate for a priority tier, bounded
// below by MinFee/BaseTxSize (spec.md §4.4 rule 4's fee-rate floor).
func (p *Params) FeeRateFor(priority string) float64 {
	rate := p.DefaultFeeRate * p.PriorityMultiplier(priority)
	floor := p.MinFee.Float64() / float64(p.BaseTxSize)
	if rate < floor {
		return floor
	}
	return rate
}

// FeeFor returns the fee owed for a transaction of the given size at the
// given rate, never less than MinFee.
func (p *Params) FeeFor(sizeBytes int, rate float64) types.MicroAmount {
	fee := types.AmountFromFloat(float64(sizeBytes) * rate)
	if fee < p.MinFee {
		return p.MinFee
	}
	return fee
}

// PriorityForRate classifies a fee rate back into the low/medium/high tier
// whose DefaultFeeRate×multiplier it matches, used to recompute the
// priority string a signed message claims (spec.md §4.4 rule 5).
func (p *Params) PriorityForRate(rate float64) (string, bool) {
	const epsilon = 1e-9
	for _, name := range []string{"low", "medium", "high"} {
		if m, ok := p.PriorityMultipliers[name]; ok {
			if abs(rate-p.DefaultFeeRate*m) < epsilon {
				return name, true
			}
		}
	}
	return "", false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
