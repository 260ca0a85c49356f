package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// CanonicalHash implements spec.md §4.1: each argument is rendered through
// CanonicalString, the rendered strings are sorted lexicographically,
// concatenated, and SHA-256'd. Grounded on
// original_source/backend/utils/cryptohash.py's crypto_hash.
func CanonicalHash(args ...any) types.Hash {
	rendered := make([]string, len(args))
	for i, a := range args {
		rendered[i] = CanonicalString(a)
	}
	sort.Strings(rendered)

	h := sha256.New()
	for _, s := range rendered {
		h.Write([]byte(s))
	}
	return types.Hash(hex.EncodeToString(h.Sum(nil)))
}

// Sha256Hex returns the hex-encoded SHA-256 digest of data.
func Sha256Hex(data []byte) types.Hash {
	sum := sha256.Sum256(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}
