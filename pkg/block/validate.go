package block

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// ErrInvalidBlock is returned by Validate for any rule violation.
var ErrInvalidBlock = errors.New("invalid block")

// UTXOView is the subset of UTXO-set state block validation needs to
// cross-check every embedded transaction; satisfied by internal/utxo.Set.
type UTXOView = tx.UTXOView

// Validate checks candidate against last, the previous block, per
// spec.md §4.5. It does not check candidate's transactions against the
// UTXO set directly — callers that also need balance/signature checks on
// each transaction should additionally call tx.Validate per transaction
// using a UTXO view reflecting the state just before candidate.
//
// Grounded on original_source/backend/models/block.py's
// Block.is_valid_block.
func Validate(params *config.Params, last, candidate *Block, nowNanos int64) error {
	if candidate.LastHash != last.Hash {
		return fmt.Errorf("block %s last_hash %s does not match previous block hash %s: %w", candidate.Hash, candidate.LastHash, last.Hash, ErrInvalidBlock)
	}

	if candidate.Difficulty < 1 {
		return fmt.Errorf("block %s: %w: %w", candidate.Hash, ErrZeroDifficulty, ErrInvalidBlock)
	}
	if !MeetsDifficulty(string(candidate.Hash), candidate.Difficulty) {
		return fmt.Errorf("block %s: %w: %w", candidate.Hash, ErrInsufficientWork, ErrInvalidBlock)
	}

	if candidate.Difficulty > last.Difficulty*2 || float64(candidate.Difficulty) < float64(last.Difficulty)/2 {
		return fmt.Errorf("block %s difficulty %d outside window of previous difficulty %d: %w: %w", candidate.Hash, candidate.Difficulty, last.Difficulty, ErrDifficultyWindow, ErrInvalidBlock)
	}

	if candidate.Timestamp <= last.Timestamp {
		return fmt.Errorf("block %s timestamp %d must be greater than previous block timestamp %d: %w", candidate.Hash, candidate.Timestamp, last.Timestamp, ErrInvalidBlock)
	}
	if candidate.Timestamp > nowNanos {
		return fmt.Errorf("block %s timestamp %d is in the future: %w", candidate.Hash, candidate.Timestamp, ErrInvalidBlock)
	}

	if candidate.Height != last.Height+1 {
		return fmt.Errorf("block %s height %d must be previous height %d + 1: %w", candidate.Hash, candidate.Height, last.Height, ErrInvalidBlock)
	}

	wantMerkle := MerkleRoot(candidate.Data)
	if candidate.MerkleRoot != wantMerkle {
		return fmt.Errorf("block %s merkle root %s does not match computed %s: %w", candidate.Hash, candidate.MerkleRoot, wantMerkle, ErrInvalidBlock)
	}

	encoded, err := json.Marshal(candidate.Data)
	if err != nil {
		return fmt.Errorf("block %s: encode data: %w", candidate.Hash, err)
	}
	if len(encoded) > params.BlockSizeLimit {
		return fmt.Errorf("block %s data of %d bytes exceeds size limit %d: %w", candidate.Hash, len(encoded), params.BlockSizeLimit, ErrInvalidBlock)
	}

	if candidate.TxCount != len(candidate.Data) {
		return fmt.Errorf("block %s tx_count %d does not match data length %d: %w", candidate.Hash, candidate.TxCount, len(candidate.Data), ErrInvalidBlock)
	}

	wantHash := computeHash(candidate.Timestamp, candidate.LastHash, candidate.Data, candidate.Difficulty, candidate.Nonce, candidate.Height, candidate.Version, candidate.MerkleRoot, candidate.TxCount)
	if wantHash != candidate.Hash {
		return fmt.Errorf("block %s hash does not match its own fields (recomputed %s): %w", candidate.Hash, wantHash, ErrInvalidBlock)
	}

	var coinbaseCount int
	var coinbaseTx *tx.Transaction
	var totalFees types.MicroAmount
	for _, t := range candidate.Data {
		if t.IsCoinbase {
			coinbaseCount++
			if coinbaseCount > 1 {
				return fmt.Errorf("block %s has more than one coinbase transaction: %w", candidate.Hash, ErrInvalidBlock)
			}
			coinbaseTx = t
			continue
		}
		totalFees += t.Fee
	}

	if coinbaseTx != nil {
		if err := tx.ValidateCoinbase(params, coinbaseTx, candidate.Height, totalFees); err != nil {
			return fmt.Errorf("block %s: %w", candidate.Hash, err)
		}
	}
	if coinbaseCount == 0 && candidate.Height > 0 {
		return fmt.Errorf("block %s is missing its coinbase transaction: %w", candidate.Hash, ErrInvalidBlock)
	}

	return nil
}
