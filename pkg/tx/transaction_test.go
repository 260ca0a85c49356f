package tx

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// fakeUTXO is a minimal in-memory UTXOView for tests.
type fakeUTXO struct {
	set map[string]map[types.Address]types.MicroAmount
}

func newFakeUTXO() *fakeUTXO {
	return &fakeUTXO{set: make(map[string]map[types.Address]types.MicroAmount)}
}

func (f *fakeUTXO) credit(txID string, addr types.Address, amount types.MicroAmount) {
	if f.set[txID] == nil {
		f.set[txID] = make(map[types.Address]types.MicroAmount)
	}
	f.set[txID][addr] = amount
}

func (f *fakeUTXO) Balance(address types.Address) types.MicroAmount {
	var total types.MicroAmount
	for _, outputs := range f.set {
		total += outputs[address]
	}
	return total
}

func (f *fakeUTXO) OutputsFor(address types.Address) map[string]types.MicroAmount {
	out := make(map[string]types.MicroAmount)
	for id, outputs := range f.set {
		if amount, ok := outputs[address]; ok {
			out[id] = amount
		}
	}
	return out
}

func (f *fakeUTXO) Owns(txID string, address types.Address) (types.MicroAmount, bool) {
	outputs, ok := f.set[txID]
	if !ok {
		return 0, false
	}
	amount, ok := outputs[address]
	return amount, ok
}

// fakeMempool is a minimal in-memory MempoolView for tests; always empty.
type fakeMempool struct{}

func (fakeMempool) PendingSpends(types.Address) types.MicroAmount { return 0 }
func (fakeMempool) Has(string) bool                               { return false }
func (fakeMempool) OwnTxIDs(types.Address) []string                { return nil }

func TestBuildCoinbase_PaysSubsidy(t *testing.T) {
	params := testParams()
	miner := types.Address("0xMiner")
	txn, err := BuildCoinbase(params, miner, 1, 0)
	if err != nil {
		t.Fatalf("BuildCoinbase: %v", err)
	}
	if err := ValidateCoinbase(params, txn, 1, 0); err != nil {
		t.Errorf("ValidateCoinbase: %v", err)
	}
	if txn.Output[miner] != params.SubsidyAt(1) {
		t.Errorf("coinbase output = %s, want subsidy %s", txn.Output[miner], params.SubsidyAt(1))
	}
}

func TestBuildSpend_ValidatesAgainstUTXO(t *testing.T) {
	params := testParams()
	key := generateTestKey(t)
	sender := key.Address()

	utxos := newFakeUTXO()
	utxos.credit("coinbase_1", sender, types.Coins(50))

	recipient := types.Address("0xRecipient")
	spend, err := BuildSpend(params, key, utxos, fakeMempool{}, recipient, types.Coins(10), "medium")
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}

	if err := Validate(params, spend, utxos, fakeMempool{}); err != nil {
		t.Errorf("Validate(built spend): %v", err)
	}

	if spend.Output[recipient] != types.Coins(10) {
		t.Errorf("recipient output = %s, want 10 coins", spend.Output[recipient])
	}
	wantChange := types.Coins(50) - types.Coins(10) - spend.Fee
	if spend.Output[sender] != wantChange {
		t.Errorf("change output = %s, want %s", spend.Output[sender], wantChange)
	}
}

func TestBuildSpend_InsufficientFunds(t *testing.T) {
	params := testParams()
	key := generateTestKey(t)
	utxos := newFakeUTXO()

	_, err := BuildSpend(params, key, utxos, fakeMempool{}, types.Address("0xRecipient"), types.Coins(10), "medium")
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}
}

func TestValidate_RejectsTamperedAmount(t *testing.T) {
	params := testParams()
	key := generateTestKey(t)
	sender := key.Address()

	utxos := newFakeUTXO()
	utxos.credit("coinbase_1", sender, types.Coins(50))

	spend, err := BuildSpend(params, key, utxos, fakeMempool{}, types.Address("0xRecipient"), types.Coins(10), "medium")
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}

	spend.Output[types.Address("0xRecipient")] = types.Coins(20)
	if err := Validate(params, spend, utxos, fakeMempool{}); err == nil {
		t.Error("expected validation failure after tampering with output amount")
	}
}

// TestValidate_RejectsPartialConsolidationClaimingFullBalance guards
// against under-listing prev_tx_ids while still claiming the sender's
// whole confirmed balance as input.amount: sender owns two UTXOs
// (30, 20), lists only the 30-coin one in prev_tx_ids, but sets
// input.amount to the full 50-coin balance. Rule 2 (conservation) and
// Rule 3 (listed ids owned) both pass in isolation; Rule 4 must reject
// it, since the 20-coin UTXO is never deleted on Apply and would
// otherwise remain spendable alongside the new outputs.
func TestValidate_RejectsPartialConsolidationClaimingFullBalance(t *testing.T) {
	params := testParams()
	key := generateTestKey(t)
	sender := key.Address()
	recipient := types.Address("0xRecipient")

	utxos := newFakeUTXO()
	utxos.credit("txA", sender, types.Coins(30))
	utxos.credit("txB", sender, types.Coins(20))

	fee := params.MinFee
	sendAmount := types.Coins(10)
	change := types.Coins(50) - sendAmount - fee // claims the *full* balance as change

	rate := params.FeeRateFor("medium")
	msg := crypto.BuildSignedMessage(recipient, sendAmount, "medium", key.PublicKeyHex())
	sig, err := key.SignMessage(msg)
	if err != nil {
		t.Fatalf("SignMessage: %v", err)
	}

	spend := &Transaction{
		ID: "tx_partial",
		Input: Input{
			Timestamp: 1,
			Address:   sender,
			PublicKey: key.PublicKeyHex(),
			Signature: sig,
			Amount:    types.Coins(50), // sender's whole balance, not the listed UTXO's value
			PrevTxIDs: []string{"txA"}, // only the 30-coin UTXO is listed
		},
		Output:  map[types.Address]types.MicroAmount{recipient: sendAmount, sender: change},
		Fee:     fee,
		FeeRate: rate,
	}

	if err := Validate(params, spend, utxos, fakeMempool{}); err == nil {
		t.Fatal("expected validation failure: input.amount must match the sum of listed prev_tx_ids, not the sender's whole balance")
	}
}
