package tx

import (
	"fmt"
	"time"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// BuildSpend assembles and signs a non-coinbase transaction paying amount
// to recipient from key's address, drawing on every UTXO and in-flight
// mempool output the sender currently owns.
//
// Grounded on
// original_source/backend/models/transaction.py's Transaction.__init__ /
// _create_input: the sender's entire set of owned UTXOs (confirmed plus
// their own pending change) is listed as prev_tx_ids regardless of how
// much is actually needed, and input.amount is the sender's net available
// balance rather than the sum actually referenced — a full-consolidation
// spend model, not a coin-selection one.
func BuildSpend(params *config.Params, key *crypto.PrivateKey, utxos UTXOView, mempool MempoolView, recipient types.Address, amount types.MicroAmount, priority string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", ErrInvalidTransaction)
	}
	if priority == "" {
		priority = "medium"
	}
	sender := key.Address()

	var pending types.MicroAmount
	if mempool != nil {
		pending = mempool.PendingSpends(sender)
	}
	balance := utxos.Balance(sender) - pending

	rate := params.FeeRateFor(priority)
	estimatedSize := EstimateSize(params, Input{Address: sender, PrevTxIDs: []string{}}, map[types.Address]types.MicroAmount{recipient: amount})
	fee := params.FeeFor(estimatedSize, rate)
	required := amount + fee
	if balance < required {
		return nil, fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, balance, required)
	}

	prevTxIDs := make([]string, 0)
	for id := range utxos.OutputsFor(sender) {
		prevTxIDs = append(prevTxIDs, id)
	}
	if mempool != nil {
		prevTxIDs = append(prevTxIDs, mempool.OwnTxIDs(sender)...)
	}
	if len(prevTxIDs) == 0 {
		return nil, fmt.Errorf("%w: no spendable utxos for %s", ErrInsufficientFunds, sender)
	}

	output := map[types.Address]types.MicroAmount{recipient: amount}
	change := balance - required
	if change > 0 {
		output[sender] = change
	}

	input := Input{
		Timestamp: time.Now().UnixNano(),
		Address:   sender,
		PublicKey: key.PublicKeyHex(),
		Amount:    balance,
		PrevTxIDs: prevTxIDs,
	}

	msg := crypto.BuildSignedMessage(recipient, amount, priority, input.PublicKey)
	sig, err := key.SignMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	input.Signature = sig

	id, err := NewID(false)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		ID:      id,
		Input:   input,
		Output:  output,
		Fee:     fee,
		FeeRate: rate,
	}
	t.Size = EstimateSize(params, input, output)
	return t, nil
}

// AssembleSubmitted builds the Transaction a caller submits ready-signed
// (recipient, amount, priority, signature, public key all supplied by the
// wallet that signed them), filling in everything the node itself is
// responsible for: input.Amount (the sender's net available balance),
// prev_tx_ids, the fee for the chosen priority and the estimated size. The
// caller must still run the result through Validate before accepting it —
// this only assembles the same shape BuildSpend produces, starting from an
// externally-produced signature instead of signing one itself.
//
// Grounded on
// original_source/backend/routers/wallet.py's route_wallet_transact,
// which receives recipient/amount/signature/public_key/priority/address
// from the caller and constructs a Transaction from them directly.
func AssembleSubmitted(params *config.Params, utxos UTXOView, mempool MempoolView, sender, recipient types.Address, amount types.MicroAmount, priority, signature, publicKeyHex string) (*Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", ErrInvalidTransaction)
	}
	if priority == "" {
		priority = "medium"
	}

	var pending types.MicroAmount
	if mempool != nil {
		pending = mempool.PendingSpends(sender)
	}
	balance := utxos.Balance(sender) - pending

	rate := params.FeeRateFor(priority)
	estimatedSize := EstimateSize(params, Input{Address: sender, PrevTxIDs: []string{}}, map[types.Address]types.MicroAmount{recipient: amount})
	fee := params.FeeFor(estimatedSize, rate)
	required := amount + fee
	if balance < required {
		return nil, fmt.Errorf("%w: available %s, required %s", ErrInsufficientFunds, balance, required)
	}

	prevTxIDs := make([]string, 0)
	for id := range utxos.OutputsFor(sender) {
		prevTxIDs = append(prevTxIDs, id)
	}
	if mempool != nil {
		prevTxIDs = append(prevTxIDs, mempool.OwnTxIDs(sender)...)
	}
	if len(prevTxIDs) == 0 {
		return nil, fmt.Errorf("%w: no spendable utxos for %s", ErrInsufficientFunds, sender)
	}

	output := map[types.Address]types.MicroAmount{recipient: amount}
	change := balance - required
	if change > 0 {
		output[sender] = change
	}

	id, err := NewID(false)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		ID: id,
		Input: Input{
			Timestamp: time.Now().UnixNano(),
			Address:   sender,
			PublicKey: publicKeyHex,
			Signature: signature,
			Amount:    balance,
			PrevTxIDs: prevTxIDs,
		},
		Output:  output,
		Fee:     fee,
		FeeRate: rate,
	}
	t.Size = EstimateSize(params, t.Input, output)
	return t, nil
}

// BuildCoinbase assembles the coinbase transaction for a newly mined
// block: a single output to miner paying subsidy(height) + collectedFees.
//
// Grounded on
// original_source/backend/models/transaction.py's
// Transaction.create_coinbase.
func BuildCoinbase(params *config.Params, miner types.Address, height uint64, collectedFees types.MicroAmount) (*Transaction, error) {
	if miner.IsZero() {
		return nil, fmt.Errorf("coinbase requires a miner address: %w", ErrInvalidTransaction)
	}
	reward := params.SubsidyAt(height) + collectedFees
	if reward <= 0 {
		return nil, fmt.Errorf("coinbase reward must be positive: %w", ErrInvalidTransaction)
	}

	id, err := NewID(true)
	if err != nil {
		return nil, err
	}

	input := Input{
		Timestamp:    time.Now().UnixNano(),
		Address:      types.CoinbaseAddress,
		PublicKey:    string(types.CoinbaseAddress),
		Signature:    string(types.CoinbaseAddress),
		CoinbaseData: fmt.Sprintf("Height:%d", height),
		BlockHeight:  height,
		Subsidy:      params.SubsidyAt(height),
		Fees:         collectedFees,
	}

	t := &Transaction{
		ID:         id,
		Input:      input,
		Output:     map[types.Address]types.MicroAmount{miner: reward},
		Fee:        0,
		IsCoinbase: true,
	}
	t.Size = params.BaseTxSize
	return t, nil
}
