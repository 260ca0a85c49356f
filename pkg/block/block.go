package block

import (
	"encoding/json"
	"fmt"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/crypto"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// Version is the only block format version this node produces or accepts.
const Version = 1

// Block is a mined block: a Header plus the transaction list it commits
// to via MerkleRoot.
type Block struct {
	Header
	Data []*tx.Transaction `canonical:"data" json:"data"`
}

// computeHash reproduces spec.md §4.1's block hash: CanonicalHash over
// the nine header/body fields, in the order the source passes them to
// crypto_hash (order is irrelevant to the result since CanonicalHash
// sorts its rendered arguments, but is kept for readability).
func computeHash(timestamp int64, lastHash types.Hash, data []*tx.Transaction, difficulty uint64, nonce uint64, height uint64, version int, merkleRoot types.Hash, txCount int) types.Hash {
	return crypto.CanonicalHash(timestamp, lastHash, data, difficulty, nonce, height, version, merkleRoot, txCount)
}

// Genesis returns the protocol's fixed starting block. Its hash and
// Merkle root are computed from the same MerkleRoot/computeHash
// functions every other block uses, rather than hardcoded literals: the
// source's GENESIS_DATA bakes in digests produced by a subtly different
// ad hoc serialization path used nowhere else, which this node does not
// reproduce bit-for-bit (see DESIGN.md). What matters for consensus is
// that every node computes the same genesis block, which a shared pure
// function guarantees regardless of where the literal came from.
func Genesis(params *config.Params) *Block {
	coinbaseData := "Initial funding"
	genesisTx := &tx.Transaction{
		ID: "genesis_initial_tx",
		Input: tx.Input{
			Timestamp:    1746707304053502800,
			Address:      types.CoinbaseAddress,
			PublicKey:    string(types.CoinbaseAddress),
			Signature:    string(types.CoinbaseAddress),
			CoinbaseData: coinbaseData,
			BlockHeight:  0,
			Subsidy:      params.SubsidyAt(0),
			Fees:         0,
		},
		Output:     map[types.Address]types.MicroAmount{"0xb169392F5D2EbC032cF6afc4645159eE2033C395": params.SubsidyAt(0)},
		Fee:        0,
		Size:       params.BaseTxSize,
		IsCoinbase: true,
	}

	data := []*tx.Transaction{genesisTx}
	const lastHash types.Hash = "d89f504b7499128eb40c973e0b5a7ec84e54c65449ae5da894b3dec0b3e2858a"
	const timestamp int64 = 1746707304053502800
	const difficulty uint64 = 3
	const height uint64 = 0
	const nonce uint64 = 0

	merkleRoot := MerkleRoot(data)
	hash := computeHash(timestamp, lastHash, data, difficulty, nonce, height, Version, merkleRoot, len(data))

	return &Block{
		Header: Header{
			Timestamp:  timestamp,
			LastHash:   lastHash,
			Hash:       hash,
			Difficulty: difficulty,
			Nonce:      nonce,
			Height:     height,
			Version:    Version,
			MerkleRoot: merkleRoot,
			TxCount:    len(data),
		},
		Data: data,
	}
}

// Mine runs the proof-of-work search for the block that extends last
// with data, using nowFn to source each attempt's timestamp (so the
// caller can inject a deterministic clock in tests). Mining is expected
// to run in its own cancellable goroutine; stop, if non-nil, is polled
// between attempts so a caller can abort a long search.
//
// Grounded on original_source/backend/models/block.py's
// Block.mine_block.
func Mine(params *config.Params, last *Block, data []*tx.Transaction, nowFn func() int64, stop <-chan struct{}) (*Block, error) {
	if last == nil {
		return nil, fmt.Errorf("mine: last block must not be nil")
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("mine: encode block data: %w", err)
	}
	if len(encoded) > params.BlockSizeLimit {
		return nil, fmt.Errorf("mine: block data of %d bytes exceeds size limit %d", len(encoded), params.BlockSizeLimit)
	}

	height := last.Height + 1
	merkleRoot := MerkleRoot(data)
	txCount := len(data)

	var nonce uint64
	timestamp := nowFn()
	difficulty := AdjustDifficulty(retargetInputs{Difficulty: last.Difficulty, Timestamp: last.Timestamp}, height, timestamp, params.TargetBlockTime, params.DifficultyInterval)
	hash := computeHash(timestamp, last.Hash, data, difficulty, nonce, height, Version, merkleRoot, txCount)

	for !MeetsDifficulty(string(hash), difficulty) {
		select {
		case <-stop:
			return nil, fmt.Errorf("mine: cancelled")
		default:
		}
		nonce++
		timestamp = nowFn()
		difficulty = AdjustDifficulty(retargetInputs{Difficulty: last.Difficulty, Timestamp: last.Timestamp}, height, timestamp, params.TargetBlockTime, params.DifficultyInterval)
		hash = computeHash(timestamp, last.Hash, data, difficulty, nonce, height, Version, merkleRoot, txCount)
	}

	return &Block{
		Header: Header{
			Timestamp:  timestamp,
			LastHash:   last.Hash,
			Hash:       hash,
			Difficulty: difficulty,
			Nonce:      nonce,
			Height:     height,
			Version:    Version,
			MerkleRoot: merkleRoot,
			TxCount:    txCount,
		},
		Data: data,
	}, nil
}
