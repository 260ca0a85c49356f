package chain

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/internal/storage"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

const testMiner types.Address = "0x0000000000000000000000000000000000dEaD"

// mineNext mines a valid successor to last carrying a sole coinbase
// transaction paying testMiner, timestamped last's timestamp plus a
// monotonically increasing counter so tests never depend on wall-clock
// time.
func mineNext(t *testing.T, params *config.Params, last *block.Block, clock *int64) *block.Block {
	t.Helper()
	coinbase, err := tx.BuildCoinbase(params, testMiner, last.Height+1, 0)
	if err != nil {
		t.Fatalf("BuildCoinbase: %v", err)
	}
	now := func() int64 {
		*clock++
		return last.Timestamp + *clock
	}
	blk, err := block.Mine(params, last, []*tx.Transaction{coinbase}, now, nil)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	return blk
}

func TestChain_NewInitializesGenesisOnEmptyStore(t *testing.T) {
	params := config.DefaultParams()
	c, err := New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Height() != 0 {
		t.Errorf("Height() = %d, want 0", c.Height())
	}
	if c.TipHash() != block.Genesis(params).Hash {
		t.Error("fresh chain's tip must be the protocol genesis block")
	}
}

func TestChain_NewReplaysStoredBlocks(t *testing.T) {
	params := config.DefaultParams()
	db := storage.NewMemory()
	c, err := New(params, db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := int64(1_000_000)
	next := mineNext(t, params, block.Genesis(params), &clock)
	if err := c.ProcessBlock(next); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	reopened, err := New(params, db)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	if reopened.Height() != 1 {
		t.Errorf("reopened Height() = %d, want 1", reopened.Height())
	}
	if reopened.Balance(testMiner) != c.Balance(testMiner) {
		t.Error("reopened chain's UTXO set must match the original after replay")
	}
}

func TestChain_ProcessBlockAppendsValidSuccessor(t *testing.T) {
	params := config.DefaultParams()
	c, err := New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := int64(1_000_000)
	next := mineNext(t, params, block.Genesis(params), &clock)

	if err := c.ProcessBlock(next); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if c.Height() != 1 {
		t.Errorf("Height() = %d, want 1", c.Height())
	}
	if got := c.Balance(testMiner); got != params.SubsidyAt(1) {
		t.Errorf("Balance(miner) = %s, want subsidy %s", got, params.SubsidyAt(1))
	}
}

func TestChain_ProcessBlockRejectsTamperedBlock(t *testing.T) {
	params := config.DefaultParams()
	c, err := New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := int64(1_000_000)
	next := mineNext(t, params, block.Genesis(params), &clock)
	next.Nonce++ // invalidates the proof-of-work without recomputing the hash

	if err := c.ProcessBlock(next); err == nil {
		t.Error("expected ProcessBlock to reject a tampered block")
	}
	if c.Height() != 0 {
		t.Error("a rejected block must not advance the chain")
	}
}

func TestChain_ReplaceChainAcceptsLongerValidFork(t *testing.T) {
	params := config.DefaultParams()
	c, err := New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := int64(1_000_000)
	first := mineNext(t, params, block.Genesis(params), &clock)
	if err := c.ProcessBlock(first); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	forkClock := int64(2_000_000)
	forkFirst := mineNext(t, params, block.Genesis(params), &forkClock)
	forkSecond := mineNext(t, params, forkFirst, &forkClock)
	fork := []*block.Block{block.Genesis(params), forkFirst, forkSecond}

	if err := c.ReplaceChain(fork); err != nil {
		t.Fatalf("ReplaceChain: %v", err)
	}
	if c.Height() != 2 {
		t.Errorf("Height() after replace = %d, want 2", c.Height())
	}
	if c.TipHash() != forkSecond.Hash {
		t.Error("tip must be the fork's last block after a successful replace")
	}
}

func TestChain_ReplaceChainRejectsShorterChain(t *testing.T) {
	params := config.DefaultParams()
	c, err := New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := int64(1_000_000)
	first := mineNext(t, params, block.Genesis(params), &clock)
	if err := c.ProcessBlock(first); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	if err := c.ReplaceChain([]*block.Block{block.Genesis(params)}); err == nil {
		t.Error("expected ReplaceChain to reject a chain no longer than the current one")
	}
	if c.Height() != 1 {
		t.Error("a rejected replacement must leave the current chain untouched")
	}
}

func TestChain_ReplaceChainRejectsInvalidChainAndRollsBack(t *testing.T) {
	params := config.DefaultParams()
	c, err := New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clock := int64(1_000_000)
	first := mineNext(t, params, block.Genesis(params), &clock)
	if err := c.ProcessBlock(first); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	forkClock := int64(2_000_000)
	forkFirst := mineNext(t, params, block.Genesis(params), &forkClock)
	forkSecond := mineNext(t, params, forkFirst, &forkClock)
	forkSecond.Nonce++ // break the second block's proof-of-work
	fork := []*block.Block{block.Genesis(params), forkFirst, forkSecond}

	if err := c.ReplaceChain(fork); err == nil {
		t.Error("expected ReplaceChain to reject an invalid candidate chain")
	}
	if c.Height() != 1 || c.TipHash() != first.Hash {
		t.Error("a rejected replacement must leave height and tip untouched")
	}
}
