// Package utxo maintains the node's unspent-output view: for each address,
// which transaction ids it still owns outputs in, and for how much.
package utxo

import (
	"sync"

	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// Set is the UTXO set: a map from address to the transaction ids that
// produced an output still owned by that address, each with its amount.
// It is entirely in-memory and rebuildable — durability is the block
// store's job (internal/storage), not the UTXO set's; on startup the
// node replays the stored chain to reconstruct it.
//
// Grounded on internal/utxo/set.go's Set interface shape (the teacher's
// outpoint-keyed, script-typed UTXO model is generalized here to the
// spec's per-address, per-tx-id owned-output model, since transactions
// in this protocol have a single aggregated input rather than scripted
// per-outpoint spends).
type Set struct {
	mu    sync.RWMutex
	owned map[types.Address]map[string]types.MicroAmount
}

// NewSet returns an empty UTXO set.
func NewSet() *Set {
	return &Set{owned: make(map[types.Address]map[string]types.MicroAmount)}
}

// Balance returns the sum of every output address currently owns.
func (s *Set) Balance(address types.Address) types.MicroAmount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total types.MicroAmount
	for _, amount := range s.owned[address.Canonical()] {
		total += amount
	}
	return total
}

// OutputsFor returns a copy of the transaction ids (and their amounts)
// address currently owns.
func (s *Set) OutputsFor(address types.Address) map[string]types.MicroAmount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.owned[address.Canonical()]
	out := make(map[string]types.MicroAmount, len(src))
	for id, amount := range src {
		out[id] = amount
	}
	return out
}

// Owns reports whether address currently owns an output of txID, and its
// amount if so. Satisfies pkg/tx.UTXOView.
func (s *Set) Owns(txID string, address types.Address) (types.MicroAmount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amount, ok := s.owned[address.Canonical()][txID]
	return amount, ok
}

// Apply forward-applies a single transaction per spec.md §4.6: every
// prev_tx_ids entry belonging to the sender is consumed (deleted), then
// every output entry is inserted keyed by the transaction's own id.
// Coinbase transactions have no input to consume.
func (s *Set) Apply(t *tx.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(t)
}

func (s *Set) applyLocked(t *tx.Transaction) {
	if !t.IsCoinbase {
		sender := t.Input.Address.Canonical()
		owned := s.owned[sender]
		for _, id := range t.Input.PrevTxIDs {
			delete(owned, id)
		}
		if len(owned) == 0 {
			delete(s.owned, sender)
		}
	}
	for address, amount := range t.Output {
		key := address.Canonical()
		if s.owned[key] == nil {
			s.owned[key] = make(map[string]types.MicroAmount)
		}
		s.owned[key][t.ID] = amount
	}
}

// ApplyAll forward-applies every transaction in data, in order.
func (s *Set) ApplyAll(data []*tx.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range data {
		s.applyLocked(t)
	}
}

// Reset discards all entries, returning the set to empty — the first
// step of a full rebuild (spec.md §4.6).
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = make(map[types.Address]map[string]types.MicroAmount)
}
