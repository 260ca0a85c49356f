package mempool

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// fakeUTXO is a minimal in-memory tx.UTXOView for tests.
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

func generateTestKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("crypto.GenerateKey: %v", err)
	}
	return key
}

func TestPool_SetRejectsTransactionBelowMinFee(t *testing.T) {
	params := config.DefaultParams()
	utxos := newFakeUTXO()
	key := generateTestKey(t)
	sender := key.Address()
	utxos.credit("coinbase_1", sender, types.Coins(50))

	p := New(params, utxos, 0)
	spend := BuildSignedSpend(t, params, key, utxos, "0xrecipient", types.Coins(10), "medium")
	spend.Fee = 1 // Validate's fee-floor check (rule 2) is evaluated before amount conservation

	if err := p.Set(spend); err == nil {
		t.Error("expected Set to reject a transaction whose fee is below the minimum")
	}
}

func TestPool_SetReplacesOnNewerTimestampOnly(t *testing.T) {
	params := config.DefaultParams()
	utxos := newFakeUTXO()
	key := generateTestKey(t)
	sender := key.Address()
	utxos.credit("coinbase_1", sender, types.Coins(50))

	p := New(params, utxos, 0)

	first := BuildSignedSpend(t, params, key, utxos, "0xrecipient", types.Coins(10), "medium")
	if err := p.Set(first); err != nil {
		t.Fatalf("Set(first): %v", err)
	}

	older := *first
	older.Input.Timestamp = first.Input.Timestamp - 1000
	if err := p.Set(&older); err != nil {
		t.Fatalf("Set(older): %v", err)
	}
	got, _ := p.Get(first.ID)
	if got.Input.Timestamp != first.Input.Timestamp {
		t.Error("an older timestamp must not replace the existing entry")
	}

	newer := *first
	newer.Input.Timestamp = first.Input.Timestamp + 1000
	if err := p.Set(&newer); err != nil {
		t.Fatalf("Set(newer): %v", err)
	}
	got, _ = p.Get(first.ID)
	if got.Input.Timestamp != newer.Input.Timestamp {
		t.Error("a newer timestamp must replace the existing entry")
	}
}

func TestPool_PendingSpendsSumsOutputsAndFee(t *testing.T) {
	params := config.DefaultParams()
	utxos := newFakeUTXO()
	key := generateTestKey(t)
	sender := key.Address()
	utxos.credit("coinbase_1", sender, types.Coins(50))

	p := New(params, utxos, 0)
	spend := BuildSignedSpend(t, params, key, utxos, "0xrecipient", types.Coins(10), "medium")
	if err := p.Set(spend); err != nil {
		t.Fatalf("Set: %v", err)
	}

	want := types.Coins(10) + spend.Fee
	if got := p.PendingSpends(sender); got != want {
		t.Errorf("PendingSpends = %s, want %s", got, want)
	}
}

func TestPool_PriorityOrdersByFeeDensityDescending(t *testing.T) {
	params := config.DefaultParams()
	utxos := newFakeUTXO()
	lowKey := generateTestKey(t)
	highKey := generateTestKey(t)
	utxos.credit("coinbase_low", lowKey.Address(), types.Coins(50))
	utxos.credit("coinbase_high", highKey.Address(), types.Coins(50))

	p := New(params, utxos, 0)
	low := BuildSignedSpend(t, params, lowKey, utxos, "0xrecipient", types.Coins(1), "low")
	high := BuildSignedSpend(t, params, highKey, utxos, "0xrecipient", types.Coins(1), "high")

	if err := p.Set(low); err != nil {
		t.Fatalf("Set(low): %v", err)
	}
	if err := p.Set(high); err != nil {
		t.Fatalf("Set(high): %v", err)
	}

	ordered := p.Priority()
	if len(ordered) != 2 || ordered[0].ID != high.ID {
		t.Errorf("Priority()[0] = %s, want the high-priority transaction first", ordered[0].ID)
	}
}

func TestPool_ClearFromChainRemovesConfirmedTransactions(t *testing.T) {
	params := config.DefaultParams()
	utxos := newFakeUTXO()
	key := generateTestKey(t)
	utxos.credit("coinbase_1", key.Address(), types.Coins(50))

	p := New(params, utxos, 0)
	spend := BuildSignedSpend(t, params, key, utxos, "0xrecipient", types.Coins(10), "medium")
	if err := p.Set(spend); err != nil {
		t.Fatalf("Set: %v", err)
	}

	chain := []*block.Block{{Data: []*tx.Transaction{spend}}}
	p.ClearFromChain(chain)

	if p.Has(spend.ID) {
		t.Error("expected ClearFromChain to remove a confirmed transaction")
	}
}

// BuildSignedSpend is a small test helper wrapping tx.BuildSpend with an
// always-empty mempool view, matching every other package's test double.
func BuildSignedSpend(t *testing.T, params *config.Params, key *crypto.PrivateKey, utxos tx.UTXOView, recipient types.Address, amount types.MicroAmount, priority string) *tx.Transaction {
	t.Helper()
	spend, err := tx.BuildSpend(params, key, utxos, emptyMempool{}, recipient, amount, priority)
	if err != nil {
		t.Fatalf("BuildSpend: %v", err)
	}
	return spend
}

type emptyMempool struct{}

func (emptyMempool) PendingSpends(types.Address) types.MicroAmount { return 0 }
func (emptyMempool) Has(string) bool                               { return false }
func (emptyMempool) OwnTxIDs(types.Address) []string                { return nil }
