package utxo

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

func TestSet_ApplyCoinbaseCreditsRecipient(t *testing.T) {
	s := NewSet()
	s.Apply(&tx.Transaction{
		ID:         "coinbase_1",
		IsCoinbase: true,
		Output:     map[types.Address]types.MicroAmount{"0xminer": 50 * types.MicroPerCoin},
	})

	if got := s.Balance("0xminer"); got != 50*types.MicroPerCoin {
		t.Errorf("Balance = %s, want 50 coins", got)
	}
	if amount, ok := s.Owns("coinbase_1", "0xminer"); !ok || amount != 50*types.MicroPerCoin {
		t.Errorf("Owns(coinbase_1, miner) = %s, %v, want 50 coins, true", amount, ok)
	}
}

func TestSet_ApplySpendConsumesPrevAndCreditsOutputs(t *testing.T) {
	s := NewSet()
	s.Apply(&tx.Transaction{
		ID:         "coinbase_1",
		IsCoinbase: true,
		Output:     map[types.Address]types.MicroAmount{"0xsender": 50 * types.MicroPerCoin},
	})

	s.Apply(&tx.Transaction{
		ID:    "tx_1",
		Input: tx.Input{Address: "0xsender", PrevTxIDs: []string{"coinbase_1"}},
		Output: map[types.Address]types.MicroAmount{
			"0xrecipient": 10 * types.MicroPerCoin,
			"0xsender":    39 * types.MicroPerCoin, // change, after a 1-coin fee
		},
	})

	if _, ok := s.Owns("coinbase_1", "0xsender"); ok {
		t.Error("expected coinbase_1 to be consumed from sender's owned set")
	}
	if got := s.Balance("0xsender"); got != 39*types.MicroPerCoin {
		t.Errorf("sender balance after spend = %s, want 39 coins", got)
	}
	if got := s.Balance("0xrecipient"); got != 10*types.MicroPerCoin {
		t.Errorf("recipient balance = %s, want 10 coins", got)
	}
}

func TestSet_ApplyEmptiesSenderEntryWhenFullyConsumed(t *testing.T) {
	s := NewSet()
	s.Apply(&tx.Transaction{ID: "coinbase_1", IsCoinbase: true, Output: map[types.Address]types.MicroAmount{"0xsender": 1}})
	s.Apply(&tx.Transaction{
		ID:     "tx_1",
		Input:  tx.Input{Address: "0xsender", PrevTxIDs: []string{"coinbase_1"}},
		Output: map[types.Address]types.MicroAmount{"0xrecipient": 1},
	})

	if outputs := s.OutputsFor("0xsender"); len(outputs) != 0 {
		t.Errorf("expected sender to own nothing after fully spending, got %v", outputs)
	}
}

func TestSet_AddressComparisonIsCaseInsensitive(t *testing.T) {
	s := NewSet()
	s.Apply(&tx.Transaction{ID: "coinbase_1", IsCoinbase: true, Output: map[types.Address]types.MicroAmount{"0xABCDEF": 5}})

	if got := s.Balance("0xabcdef"); got != 5 {
		t.Errorf("Balance with differently-cased address = %s, want 5", got)
	}
}

func TestSet_Reset(t *testing.T) {
	s := NewSet()
	s.Apply(&tx.Transaction{ID: "coinbase_1", IsCoinbase: true, Output: map[types.Address]types.MicroAmount{"0xminer": 1}})
	s.Reset()
	if got := s.Balance("0xminer"); got != 0 {
		t.Errorf("Balance after Reset = %s, want 0", got)
	}
}
