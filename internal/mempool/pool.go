// Package mempool holds unconfirmed transactions awaiting block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// Mempool errors.
var (
	ErrPoolFull   = errors.New("mempool is full")
	ErrValidation = errors.New("transaction failed validation")
)

// entry wraps a transaction with its input timestamp (t.Input.Timestamp),
// which the replace-by-newer-timestamp rule compares (spec.md §4.8 set()).
type entry struct {
	tx        *tx.Transaction
	timestamp int64
}

// Pool holds unconfirmed transactions, keyed by transaction id.
//
// Grounded on the teacher's internal/mempool/pool.go (RWMutex-guarded
// map, sort.Slice-based ordering, maxSize + eviction), adapted from
// per-outpoint conflict tracking to spec.md §4.8's id-keyed,
// replace-by-newer-timestamp model — there is no separate conflict
// index, since a transaction's prev_tx_ids overlap is already checked
// by tx.Validate against the live UTXO/mempool view at Set time.
type Pool struct {
	mu      sync.RWMutex
	params  *config.Params
	utxos   tx.UTXOView
	policy  *Policy
	txs     map[string]*entry
	maxSize int
}

// New returns an empty pool bounded by maxSize (params.MempoolThreshold
// governs fee-rate scaling, not pool capacity — maxSize here is purely a
// resource bound).
func New(params *config.Params, utxos tx.UTXOView, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 50_000
	}
	return &Pool{
		params:  params,
		utxos:   utxos,
		policy:  DefaultPolicy(),
		txs:     make(map[string]*entry),
		maxSize: maxSize,
	}
}

// Set validates and admits t per spec.md §4.8: if an entry with the same
// id already exists, replace it only when t's input timestamp is
// strictly greater; a fresh id is inserted unless the pool already holds
// maxSize entries, in which case Set returns ErrPoolFull.
func (p *Pool) Set(t *tx.Transaction) error {
	if err := p.policy.Check(t); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if !t.IsCoinbase {
		// A same-id replacement (a resubmission with a newer timestamp)
		// must not count its own already-pooled version as a pending
		// spend against itself, or rule 4's balance check would reject
		// every replacement.
		if err := tx.Validate(p.params, t, p.utxos, excludingView{p, t.ID}); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.txs[t.ID]; ok {
		if t.Input.Timestamp <= existing.timestamp {
			return nil
		}
		p.txs[t.ID] = &entry{tx: t, timestamp: t.Input.Timestamp}
		return nil
	}

	if len(p.txs) >= p.maxSize {
		return ErrPoolFull
	}
	p.txs[t.ID] = &entry{tx: t, timestamp: t.Input.Timestamp}
	return nil
}

// Has reports whether id is currently in the pool. Satisfies
// pkg/tx.MempoolView.
func (p *Pool) Has(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.txs[id]
	return ok
}

// Get returns the transaction with id, if present.
func (p *Pool) Get(id string) (*tx.Transaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.txs[id]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Count returns the number of pooled transactions.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// All returns every pooled transaction in unspecified order, for
// callers (the RPC mempool listing) that want the full contents rather
// than a priority ordering.
func (p *Pool) All() []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*tx.Transaction, 0, len(p.txs))
	for _, e := range p.txs {
		out = append(out, e.tx)
	}
	return out
}

// OwnTxIDs returns the ids of pooled transactions whose sender is
// address. Satisfies pkg/tx.MempoolView.
func (p *Pool) OwnTxIDs(address types.Address) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []string
	for id, e := range p.txs {
		if !e.tx.IsCoinbase && e.tx.Input.Address.Equal(address) {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingSpends sums, over every pooled transaction sent by address, the
// amount paid away (every output not back to the sender) plus the fee —
// i.e. the part of address's balance already committed by transactions
// waiting for confirmation. Satisfies pkg/tx.MempoolView.
//
// Grounded on spec.md §4.8's pending_spends definition.
func (p *Pool) PendingSpends(address types.Address) types.MicroAmount {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total types.MicroAmount
	for _, e := range p.txs {
		t := e.tx
		if t.IsCoinbase || !t.Input.Address.Equal(address) {
			continue
		}
		for recipient, amount := range t.Output {
			if !recipient.Equal(address) {
				total += amount
			}
		}
		total += t.Fee
	}
	return total
}

// Priority returns every pooled transaction ordered by fee density
// (fee/size) descending, per spec.md §4.8.
func (p *Pool) Priority() []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return feeDensity(entries[i].tx) > feeDensity(entries[j].tx)
	})

	out := make([]*tx.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

func feeDensity(t *tx.Transaction) float64 {
	if t.Size == 0 {
		return 0
	}
	return float64(t.Fee) / float64(t.Size)
}

// ClearFromChain removes every pooled transaction that appears in any
// block of chain (spec.md §4.8 clear_from_chain).
func (p *Pool) ClearFromChain(chain []*block.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range chain {
		for _, t := range b.Data {
			delete(p.txs, t.ID)
		}
	}
}

// Remove drops a single transaction from the pool by id.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.txs, id)
}

// excludingView wraps a Pool's tx.MempoolView, hiding one transaction id
// from PendingSpends/OwnTxIDs/Has. Used by Set to validate a replacement
// against the pool's state as it would be without the entry being
// replaced, rather than double-counting that entry's own pending spend.
type excludingView struct {
	*Pool
	excludeID string
}

func (v excludingView) Has(id string) bool {
	if id == v.excludeID {
		return false
	}
	return v.Pool.Has(id)
}

func (v excludingView) OwnTxIDs(address types.Address) []string {
	ids := v.Pool.OwnTxIDs(address)
	out := ids[:0:0]
	for _, id := range ids {
		if id != v.excludeID {
			out = append(out, id)
		}
	}
	return out
}

func (v excludingView) PendingSpends(address types.Address) types.MicroAmount {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var total types.MicroAmount
	for id, e := range v.txs {
		if id == v.excludeID {
			continue
		}
		t := e.tx
		if t.IsCoinbase || !t.Input.Address.Equal(address) {
			continue
		}
		for recipient, amount := range t.Output {
			if !recipient.Equal(address) {
				total += amount
			}
		}
		total += t.Fee
	}
	return total
}
