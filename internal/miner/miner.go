// Package miner implements block production.
package miner

import (
	"context"
	"fmt"
	"time"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// BlockSource returns the tip block a new block should extend;
// mining needs the whole header (difficulty, timestamp), not just its
// hash and height.
type BlockSource interface {
	Tip() *block.Block
}

// MempoolSelector selects pending transactions for block inclusion.
type MempoolSelector interface {
	Priority() []*tx.Transaction
}

// Miner produces new blocks by assembling a coinbase transaction over
// the highest-priority pending transactions and running the
// proof-of-work search.
//
// Grounded on the teacher's internal/miner/miner.go (ChainState/
// MempoolSelector-shaped small interfaces, a cancellable produce path),
// adapted to call pkg/block.Mine directly instead of a pluggable
// consensus.Engine — spec.md has only one consensus rule.
type Miner struct {
	params       *config.Params
	chain        BlockSource
	pool         MempoolSelector
	coinbaseAddr types.Address
	maxBlockTxs  int
}

// New returns a miner that pays block rewards to coinbaseAddr.
func New(params *config.Params, chain BlockSource, pool MempoolSelector, coinbaseAddr types.Address, maxBlockTxs int) *Miner {
	if maxBlockTxs <= 0 {
		maxBlockTxs = 5000
	}
	return &Miner{
		params:       params,
		chain:        chain,
		pool:         pool,
		coinbaseAddr: coinbaseAddr,
		maxBlockTxs:  maxBlockTxs,
	}
}

// ProduceBlock assembles a candidate block and runs the proof-of-work
// search for it, blocking until a solution is found or ctx is
// cancelled. The returned block is not applied to the chain — the
// caller is expected to hand it to chain.Chain.ProcessBlock.
func (m *Miner) ProduceBlock(ctx context.Context) (*block.Block, error) {
	last := m.chain.Tip()
	height := last.Height + 1

	var selected []*tx.Transaction
	var totalFees types.MicroAmount
	if m.pool != nil {
		for _, t := range m.pool.Priority() {
			if len(selected) >= m.maxBlockTxs-1 { // reserve a slot for the coinbase
				break
			}
			selected = append(selected, t)
			totalFees += t.Fee
		}
	}

	coinbase, err := tx.BuildCoinbase(m.params, m.coinbaseAddr, height, totalFees)
	if err != nil {
		return nil, fmt.Errorf("produce block: build coinbase: %w", err)
	}

	data := make([]*tx.Transaction, 0, 1+len(selected))
	data = append(data, coinbase)
	data = append(data, selected...)

	stop := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			close(stop)
		case <-done:
		}
	}()

	blk, err := block.Mine(m.params, last, data, nowNanos, stop)
	if err != nil {
		return nil, fmt.Errorf("produce block: %w", err)
	}
	return blk, nil
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
