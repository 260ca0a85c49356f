package block

import (
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// MerkleRoot computes the root commitment over data per spec.md §4.2: the
// empty block's root is CanonicalHash of the empty string; otherwise each
// transaction's canonical encoding is itself hashed to form the leaf
// level, and levels are reduced pairwise (concatenate-then-hash) until one
// hash remains, with an odd trailing leaf promoted unchanged to the next
// level rather than duplicated.
//
// Hashing goes through CanonicalHash rather than a raw SHA-256, matching
// crypto_hash's behavior of re-serializing even a single string argument
// before digesting it — so a leaf's hash is CanonicalHash(serialized tx)
// and an interior node's hash is CanonicalHash(left+right), not a direct
// digest of the concatenated bytes.
//
// Grounded on original_source/backend/models/block.py's
// Block.calculate_merkle_root.
func MerkleRoot(data []*tx.Transaction) types.Hash {
	if len(data) == 0 {
		return crypto.CanonicalHash("")
	}

	level := make([]types.Hash, len(data))
	for i, t := range data {
		level[i] = crypto.CanonicalHash(crypto.CanonicalString(t))
	}

	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.CanonicalHash(string(level[i])+string(level[i+1])))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}
