package block

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/config"
)

func TestGenesis_IsInternallyConsistent(t *testing.T) {
	params := config.DefaultParams()
	g := Genesis(params)

	if g.Height != 0 {
		t.Errorf("genesis height = %d, want 0", g.Height)
	}
	if len(g.Data) != 1 || !g.Data[0].IsCoinbase {
		t.Fatalf("genesis must have exactly one coinbase transaction")
	}

	wantMerkle := MerkleRoot(g.Data)
	if g.MerkleRoot != wantMerkle {
		t.Errorf("genesis merkle root = %s, want %s", g.MerkleRoot, wantMerkle)
	}

	wantHash := computeHash(g.Timestamp, g.LastHash, g.Data, g.Difficulty, g.Nonce, g.Height, g.Version, g.MerkleRoot, g.TxCount)
	if g.Hash != wantHash {
		t.Errorf("genesis hash = %s, want %s", g.Hash, wantHash)
	}
}

func TestMine_ProducesBlockMeetingItsOwnDifficulty(t *testing.T) {
	params := config.DefaultParams()
	params.DifficultyInterval = 1_000_000 // keep difficulty pinned for this test
	last := Genesis(params)
	last.Difficulty = 4

	tick := int64(1)
	now := func() int64 {
		tick++
		return tick
	}

	mined, err := Mine(params, last, nil, now, nil)
	if err != nil {
		t.Fatalf("Mine returned error: %v", err)
	}
	if !MeetsDifficulty(string(mined.Hash), mined.Difficulty) {
		t.Errorf("mined block hash %s does not meet its own difficulty %d", mined.Hash, mined.Difficulty)
	}
	if mined.Height != last.Height+1 {
		t.Errorf("mined block height = %d, want %d", mined.Height, last.Height+1)
	}
	if mined.LastHash != last.Hash {
		t.Errorf("mined block last_hash = %s, want %s", mined.LastHash, last.Hash)
	}
}

func TestMine_RespectsCancellation(t *testing.T) {
	params := config.DefaultParams()
	last := Genesis(params)
	last.Difficulty = 256 // unreachable in a bounded test run

	stop := make(chan struct{})
	close(stop)

	tick := int64(1)
	now := func() int64 { tick++; return tick }

	_, err := Mine(params, last, nil, now, stop)
	if err == nil {
		t.Error("expected Mine to return an error when stop is already closed")
	}
}
