package block

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

func TestMerkleRoot_EmptyMatchesCanonicalHashOfEmptyString(t *testing.T) {
	got := MerkleRoot(nil)
	want := crypto.CanonicalHash("")
	if got != want {
		t.Errorf("MerkleRoot(nil) = %s, want %s", got, want)
	}
}

func TestMerkleRoot_SingleLeafIsItsOwnHash(t *testing.T) {
	txn := &tx.Transaction{ID: "tx_1", Output: map[types.Address]types.MicroAmount{"0xabc": 1}}
	got := MerkleRoot([]*tx.Transaction{txn})
	want := crypto.CanonicalHash(crypto.CanonicalString(txn))
	if got != want {
		t.Errorf("MerkleRoot single leaf = %s, want %s", got, want)
	}
}

func TestMerkleRoot_OddCountPromotesLastLeafUnchanged(t *testing.T) {
	a := &tx.Transaction{ID: "a"}
	b := &tx.Transaction{ID: "b"}
	c := &tx.Transaction{ID: "c"}

	ha := crypto.CanonicalHash(crypto.CanonicalString(a))
	hb := crypto.CanonicalHash(crypto.CanonicalString(b))
	hc := crypto.CanonicalHash(crypto.CanonicalString(c))

	level1 := crypto.CanonicalHash(string(ha) + string(hb))
	want := crypto.CanonicalHash(string(level1) + string(hc))

	got := MerkleRoot([]*tx.Transaction{a, b, c})
	if got != want {
		t.Errorf("MerkleRoot odd count = %s, want %s", got, want)
	}
}

func TestMerkleRoot_DifferentDataDiffersRoot(t *testing.T) {
	a := &tx.Transaction{ID: "a", Fee: 1}
	b := &tx.Transaction{ID: "a", Fee: 2}
	if MerkleRoot([]*tx.Transaction{a}) == MerkleRoot([]*tx.Transaction{b}) {
		t.Error("expected different transaction contents to produce different roots")
	}
}
