package block

import (
	"errors"
	"strings"
)

// Sentinel errors for proof-of-work and difficulty checks.
var (
	ErrInsufficientWork  = errors.New("block hash does not satisfy its claimed difficulty")
	ErrZeroDifficulty    = errors.New("block difficulty must be at least 1")
	ErrDifficultyWindow  = errors.New("block difficulty outside the allowed retarget window")
)

var hexNibble = [16]string{
	"0000", "0001", "0010", "0011",
	"0100", "0101", "0110", "0111",
	"1000", "1001", "1010", "1011",
	"1100", "1101", "1110", "1111",
}

// hexToBinary expands a lowercase hex digest into its bit string, four
// bits per nibble. Grounded on
// original_source/backend/utils/hex_to_binary.py.
func hexToBinary(hex string) string {
	var b strings.Builder
	b.Grow(len(hex) * 4)
	for _, c := range hex {
		var idx int
		switch {
		case c >= '0' && c <= '9':
			idx = int(c - '0')
		case c >= 'a' && c <= 'f':
			idx = int(c-'a') + 10
		default:
			idx = 0
		}
		b.WriteString(hexNibble[idx])
	}
	return b.String()
}

// MeetsDifficulty reports whether hash's binary expansion has at least
// difficulty leading zero bits.
func MeetsDifficulty(hash string, difficulty uint64) bool {
	bits := hexToBinary(hash)
	if uint64(len(bits)) < difficulty {
		return false
	}
	return strings.Count(bits[:difficulty], "0") == int(difficulty)
}

// retargetInputs is the subset of the previous block a difficulty
// retarget needs: its recorded difficulty and timestamp.
type retargetInputs struct {
	Difficulty uint64
	Timestamp  int64
}

// AdjustDifficulty implements spec.md §4.3's retargeting rule: the
// difficulty only ever changes on a block whose height is a multiple of
// targetInterval, and even then only when the proportional change between
// the expected and actual time for the last interval exceeds a 5%
// deadband. The result is clamped to [max(1, old/2), old*2].
//
// Grounded on original_source/backend/models/block.py's
// Block.adjust_difficulty (the version actually invoked — the Settings
// class's TARGET_BLOCK_TIME=60 constant is dead code, shadowed locally by
// this method's own TARGET_BLOCK_TIME=9/DIFFICULTY_INTERVAL=9).
func AdjustDifficulty(last retargetInputs, newHeight uint64, newTimestamp int64, targetBlockTimeSeconds int, difficultyInterval uint64) uint64 {
	if newHeight%difficultyInterval != 0 {
		return last.Difficulty
	}

	timeDiffSeconds := float64(newTimestamp-last.Timestamp) / 1e9
	if timeDiffSeconds < 1 {
		timeDiffSeconds = 1
	}

	expected := float64(targetBlockTimeSeconds) * float64(difficultyInterval)
	ratio := expected / timeDiffSeconds
	proposed := float64(last.Difficulty) * ratio

	percentChange := proposed - float64(last.Difficulty)
	if percentChange < 0 {
		percentChange = -percentChange
	}
	percentChange /= float64(last.Difficulty)
	if percentChange < 0.05 {
		return last.Difficulty
	}

	maxDifficulty := last.Difficulty * 2
	minDifficulty := last.Difficulty / 2
	if minDifficulty < 1 {
		minDifficulty = 1
	}

	newDifficulty := uint64(proposed)
	if newDifficulty < minDifficulty {
		newDifficulty = minDifficulty
	}
	if newDifficulty > maxDifficulty {
		newDifficulty = maxDifficulty
	}
	return newDifficulty
}
