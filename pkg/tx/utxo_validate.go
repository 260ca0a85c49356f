package tx

import "github.com/klingnet-chain/klingnet-core/pkg/types"

// UTXOView is the read-only projection of the confirmed UTXO set that
// transaction construction and validation need. internal/utxo.Set
// implements it; pkg/tx never imports internal/utxo directly, so the
// dependency only runs one way (internal → pkg), matching the module's
// layering (spec.md §2: "Hash → Transaction → Block → Blockchain → ...").
type UTXOView interface {
	// Balance returns the sum of every unspent output currently owned by
	// address.
	Balance(address types.Address) types.MicroAmount
	// OutputsFor returns the tx-id → amount entries currently owned by
	// address.
	OutputsFor(address types.Address) map[string]types.MicroAmount
	// Owns reports whether txID's recorded output set pays address, and
	// the amount if so.
	Owns(txID string, address types.Address) (types.MicroAmount, bool)
}

// MempoolView is the read-only projection of pending transactions that
// construction and validation need.
type MempoolView interface {
	// PendingSpends sums, over every pending transaction sent by address,
	// the non-change outputs plus fee (spec.md §4.8's pending_spends).
	PendingSpends(address types.Address) types.MicroAmount
	// Has reports whether txID is a pending transaction.
	Has(txID string) bool
	// OwnTxIDs returns the ids of pending transactions authored by
	// address — their own (unconfirmed) ids are treated as further
	// spendable inputs the next transaction from the same sender may
	// reference, mirroring
	// original_source/backend/models/transaction.py's _create_input,
	// which folds the sender's own in-flight change outputs into the next
	// transaction's prev_tx_ids.
	OwnTxIDs(address types.Address) []string
}
