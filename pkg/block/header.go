// Package block implements the block data model: header metadata, the
// Merkle commitment over a transaction list, proof-of-work mining and
// difficulty retargeting, and full block validation against a predecessor.
// Grounded on original_source/backend/models/block.py's Block class.
package block

import "github.com/klingnet-chain/klingnet-core/pkg/types"

// Header is a block's metadata, excluding its transaction list — the
// portion peers can exchange and verify PoW against without fetching the
// full body.
type Header struct {
	Timestamp  int64      `canonical:"timestamp" json:"timestamp"`
	LastHash   types.Hash `canonical:"last_hash" json:"last_hash"`
	Hash       types.Hash `canonical:"hash" json:"hash"`
	Difficulty uint64     `canonical:"difficulty" json:"difficulty"`
	Nonce      uint64     `canonical:"nonce" json:"nonce"`
	Height     uint64     `canonical:"height" json:"height"`
	Version    int        `canonical:"version" json:"version"`
	MerkleRoot types.Hash `canonical:"merkle_root" json:"merkle_root"`
	TxCount    int        `canonical:"tx_count" json:"tx_count"`
}
