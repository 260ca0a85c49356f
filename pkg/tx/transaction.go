// Package tx implements the transaction data model: construction, the
// coinbase/non-coinbase input shape, fee computation and validation against
// a UTXO view. Grounded on
// original_source/backend/models/transaction.py's Transaction class.
package tx

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// Input carries both the coinbase and the non-coinbase spend shape in one
// struct, mirroring the original's single dict-based `input` field rather
// than two Go types joined by an interface — Transaction.IsCoinbase alone
// decides which fields are meaningful, exactly as the source does.
type Input struct {
	Timestamp int64         `canonical:"timestamp" json:"timestamp"`
	Address   types.Address `canonical:"address" json:"address"`
	PublicKey string        `canonical:"public_key" json:"public_key"`
	Signature string        `canonical:"signature" json:"signature"`

	// Amount is the sender's confirmed balance minus its pending mempool
	// spends at signing time (non-coinbase only): spec.md §4.4 rule 4
	// checks this against the sum of PrevTxIDs' UTXO amounts minus pending
	// mempool spends.
	Amount types.MicroAmount `canonical:"amount" json:"amount"`
	// PrevTxIDs names the UTXO entries this input draws from
	// (non-coinbase only).
	PrevTxIDs []string `canonical:"prev_tx_ids" json:"prev_tx_ids"`

	// CoinbaseData, BlockHeight, Subsidy and Fees are populated only when
	// Transaction.IsCoinbase is true.
	CoinbaseData string            `canonical:"coinbase_data,omitempty" json:"coinbase_data,omitempty"`
	BlockHeight  uint64            `canonical:"block_height,omitempty" json:"block_height,omitempty"`
	Subsidy      types.MicroAmount `canonical:"subsidy,omitempty" json:"subsidy,omitempty"`
	Fees         types.MicroAmount `canonical:"fees,omitempty" json:"fees,omitempty"`
}

// Transaction is a signed transfer (or a coinbase mint) between addresses.
// Output maps recipient address to amount; for a non-coinbase spend it
// holds the recipient entry plus, when change remains, a second entry
// paying the sender back.
type Transaction struct {
	ID      string                               `canonical:"id" json:"id"`
	Input   Input                                `canonical:"input" json:"input"`
	Output  map[types.Address]types.MicroAmount  `canonical:"output" json:"output"`
	Fee     types.MicroAmount                    `canonical:"fee" json:"fee"`
	// FeeRate is the coins-per-byte rate chosen at construction time
	// (DefaultFeeRate × the requested priority's multiplier). It is
	// carried on the transaction itself, not recomputed from Fee/Size at
	// validation time, because Size is only an estimate: spec.md §4.4
	// rule 5 classifies the signed priority tier from this stored rate.
	// It is excluded from the canonical encoding (canonical:"-"): the
	// source's to_json omits fee_rate from the dict that feeds block
	// hashing and the Merkle commitment, carrying it only as an in-memory
	// attribute.
	FeeRate    float64 `canonical:"-" json:"fee_rate,omitempty"`
	Size       int     `canonical:"size" json:"size"`
	IsCoinbase bool    `canonical:"is_coinbase" json:"is_coinbase"`
}

// NewID returns a fresh random transaction identifier. coinbase
// transactions are prefixed so they're recognizable in logs and stores
// without inspecting Input, matching the source's
// f"coinbase_{uuid4()}" / str(uuid4()) split.
func NewID(isCoinbase bool) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate transaction id: %w", err)
	}
	id := hex.EncodeToString(raw[:])
	if isCoinbase {
		return "coinbase_" + id, nil
	}
	return "tx_" + id, nil
}

// OutputTotal returns the sum of every output value.
func (t *Transaction) OutputTotal() types.MicroAmount {
	var total types.MicroAmount
	for _, v := range t.Output {
		total += v
	}
	return total
}

// Recipient returns the non-change output (the first entry whose address
// differs from the input's sender), and true if one was found. Coinbase
// transactions always have exactly one output and it always qualifies.
func (t *Transaction) Recipient() (types.Address, types.MicroAmount, bool) {
	for addr, amount := range t.Output {
		if t.IsCoinbase || !addr.Equal(t.Input.Address) {
			return addr, amount, true
		}
	}
	return "", 0, false
}

// ChangeOutput returns the sender's own change output, if present.
func (t *Transaction) ChangeOutput() (types.MicroAmount, bool) {
	if t.IsCoinbase {
		return 0, false
	}
	v, ok := t.Output[t.Input.Address]
	return v, ok
}
