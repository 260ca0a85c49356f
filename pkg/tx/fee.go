package tx

import (
	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// EstimateSize approximates the wire size of a transaction from the
// canonical encoding of its input and output, never less than
// params.BaseTxSize. Grounded on
// original_source/backend/models/transaction.py's _calculate_size, which
// derives size from the string length of the input/output dicts rather
// than a fixed-width binary encoding.
func EstimateSize(params *config.Params, in Input, output map[types.Address]types.MicroAmount) int {
	size := len(crypto.CanonicalString(in)) + len(crypto.CanonicalString(output))
	if size < params.BaseTxSize {
		return params.BaseTxSize
	}
	return size
}

// FeeFor computes the fee owed for a transaction of the given size paying
// the given priority tier (spec.md §4.4 rule 4 / §4.9): fee = max(size ×
// rate, MinFee), where rate = DefaultFeeRate × PriorityMultipliers[priority],
// floored at MinFee/BaseTxSize.
func FeeFor(params *config.Params, sizeBytes int, priority string) types.MicroAmount {
	rate := params.FeeRateFor(priority)
	return params.FeeFor(sizeBytes, rate)
}

// PriorityForRate classifies a stored fee rate back into "low", "medium"
// or "high" by matching it against DefaultFeeRate×PriorityMultipliers,
// falling back to "medium" when no tier matches closely (spec.md §4.4
// rule 5). Grounded on
// original_source/backend/models/transaction.py's Transaction.is_valid,
// which classifies transaction.fee_rate (a stored attribute) rather than
// recomputing fee/size.
func PriorityForRate(params *config.Params, rate float64) string {
	if name, ok := params.PriorityForRate(rate); ok {
		return name
	}
	return "medium"
}
