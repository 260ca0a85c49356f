package tx

import (
	"fmt"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// Validate checks a non-coinbase transaction against spec.md §4.4's five
// rules. Coinbase transactions are validated separately by
// ValidateCoinbase, since block assembly — not mempool admission — is
// where their budget (subsidy + collected fees) is known.
//
// Grounded on
// original_source/backend/models/transaction.py's Transaction.is_valid.
func Validate(params *config.Params, t *Transaction, utxos UTXOView, mempool MempoolView) error {
	if t.IsCoinbase {
		return fmt.Errorf("validate: use ValidateCoinbase for coinbase transactions: %w", ErrInvalidTransaction)
	}

	// Rule 1: sender must not claim the coinbase issuer address.
	if t.Input.Address.IsCoinbase() {
		return fmt.Errorf("non-coinbase transaction %s must not use the coinbase address: %w", t.ID, ErrInvalidTransaction)
	}
	if t.Input.Address.IsZero() || t.Input.PublicKey == "" || t.Input.Signature == "" {
		return fmt.Errorf("transaction %s missing sender address, public key or signature: %w", t.ID, ErrInvalidTransaction)
	}

	// Rule 2: fee floor and amount conservation.
	if t.Fee < params.MinFee {
		return fmt.Errorf("transaction %s fee %s below minimum %s: %w", t.ID, t.Fee, params.MinFee, ErrInvalidTransaction)
	}
	outputTotal := t.OutputTotal()
	if t.Input.Amount != outputTotal+t.Fee {
		return fmt.Errorf("transaction %s input amount %s does not equal outputs %s + fee %s: %w",
			t.ID, t.Input.Amount, outputTotal, t.Fee, ErrInvalidTransaction)
	}

	// Rule 3: every referenced UTXO must be confirmed or still pending.
	if len(t.Input.PrevTxIDs) == 0 {
		return fmt.Errorf("transaction %s has no prev_tx_ids: %w", t.ID, ErrInvalidTransaction)
	}
	for _, id := range t.Input.PrevTxIDs {
		if _, ok := utxos.Owns(id, t.Input.Address); ok {
			continue
		}
		if mempool != nil && mempool.Has(id) {
			continue
		}
		return fmt.Errorf("transaction %s references unknown utxo %s: %w", t.ID, id, ErrInvalidTransaction)
	}

	// Rule 4: input.amount must equal the sum of the confirmed UTXOs
	// actually listed in prev_tx_ids, minus the sender's already-pending
	// spends. A prev_tx_ids entry that is only a pending mempool output
	// (not yet confirmed) contributes nothing to the sum here, matching
	// original_source/backend/models/transaction.py's is_valid, which
	// skips ("continue") ids found in transaction_pool.transaction_map
	// when computing actual_spent_utxo_total. This must sum only the
	// listed ids, not the sender's whole confirmed balance: otherwise a
	// transaction could under-list prev_tx_ids while still claiming the
	// sender's full balance as input.amount, leaving the unlisted UTXOs
	// owned by the sender after Apply deletes only the listed ones.
	var listedTotal types.MicroAmount
	for _, id := range t.Input.PrevTxIDs {
		if amount, ok := utxos.Owns(id, t.Input.Address); ok {
			listedTotal += amount
		}
	}
	var pending types.MicroAmount
	if mempool != nil {
		pending = mempool.PendingSpends(t.Input.Address)
	}
	available := listedTotal - pending
	if t.Input.Amount != available {
		return fmt.Errorf("transaction %s input amount %s does not match available balance %s: %w",
			t.ID, t.Input.Amount, available, ErrInvalidTransaction)
	}

	// Rule 5: signature must recover to the claimed sender.
	recipient, amount, ok := t.Recipient()
	if !ok {
		return fmt.Errorf("transaction %s has no recipient output: %w", t.ID, ErrInvalidTransaction)
	}
	priority := PriorityForRate(params, t.FeeRate)
	msg := crypto.BuildSignedMessage(recipient, amount, priority, t.Input.PublicKey)
	signer, err := crypto.RecoverAddress(msg, t.Input.Signature)
	if err != nil {
		return fmt.Errorf("transaction %s signature verification failed: %w: %w", t.ID, err, ErrInvalidTransaction)
	}
	if !signer.Equal(t.Input.Address) {
		return fmt.Errorf("transaction %s signature signer %s does not match sender %s: %w", t.ID, signer, t.Input.Address, ErrInvalidTransaction)
	}

	return nil
}

// ValidateCoinbase checks spec.md §4.3/§4.5's coinbase rule: exactly one
// output equal to subsidy(height) + fees.
func ValidateCoinbase(params *config.Params, t *Transaction, height uint64, collectedFees types.MicroAmount) error {
	if !t.IsCoinbase {
		return fmt.Errorf("validate coinbase: transaction %s is not marked coinbase: %w", t.ID, ErrInvalidTransaction)
	}
	if len(t.Output) != 1 {
		return fmt.Errorf("coinbase transaction %s must have exactly one output, has %d: %w", t.ID, len(t.Output), ErrInvalidTransaction)
	}
	want := params.SubsidyAt(height) + collectedFees
	for _, amount := range t.Output {
		if amount != want {
			return fmt.Errorf("coinbase transaction %s output %s does not equal subsidy+fees %s: %w", t.ID, amount, want, ErrInvalidTransaction)
		}
		if amount <= 0 {
			return fmt.Errorf("coinbase transaction %s output must be positive: %w", t.ID, ErrInvalidTransaction)
		}
	}
	return nil
}
