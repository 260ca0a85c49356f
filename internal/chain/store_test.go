package chain

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/internal/storage"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
)

func TestBlockStore_AppendOrReplaceAndLoadAll(t *testing.T) {
	params := config.DefaultParams()
	s := NewBlockStore(storage.NewMemory())

	genesis := block.Genesis(params)
	if err := s.AppendOrReplace(genesis); err != nil {
		t.Fatalf("AppendOrReplace: %v", err)
	}

	clock := int64(1_000_000)
	next := mineNext(t, params, genesis, &clock)
	if err := s.AppendOrReplace(next); err != nil {
		t.Fatalf("AppendOrReplace: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}

	blocks, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(blocks) != 2 || blocks[0].Hash != genesis.Hash || blocks[1].Hash != next.Hash {
		t.Error("LoadAll must return blocks in height order")
	}
}

func TestBlockStore_AppendOrReplaceOverwritesExistingHeight(t *testing.T) {
	params := config.DefaultParams()
	s := NewBlockStore(storage.NewMemory())
	genesis := block.Genesis(params)
	if err := s.AppendOrReplace(genesis); err != nil {
		t.Fatalf("AppendOrReplace: %v", err)
	}

	clock := int64(1_000_000)
	forkGenesisClone := mineNext(t, params, genesis, &clock)
	if err := s.AppendOrReplace(forkGenesisClone); err != nil {
		t.Fatalf("AppendOrReplace: %v", err)
	}

	forkClock := int64(2_000_000)
	replacement := mineNext(t, params, genesis, &forkClock)
	if err := s.AppendOrReplace(replacement); err != nil {
		t.Fatalf("AppendOrReplace (overwrite): %v", err)
	}

	got, err := s.At(1)
	if err != nil {
		t.Fatalf("At(1): %v", err)
	}
	if got.Hash != replacement.Hash {
		t.Error("AppendOrReplace must overwrite the block previously stored at the same height")
	}
	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("Count() after overwrite = %d, want 2", count)
	}
}

func TestBlockStore_CountIsZeroOnFreshStore(t *testing.T) {
	s := NewBlockStore(storage.NewMemory())
	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count() = %d, want 0", count)
	}
}
