// Package types defines the primitive value types shared across the node:
// hashes, addresses and fixed-point amounts.
package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hash is a hex-encoded SHA-256 digest. Unlike a fixed-width byte array,
// it is string-backed: consensus hashing (pkg/crypto.CanonicalHash) operates
// over canonical JSON-like text, and hashes are carried on the wire and in
// storage as hex text, never as raw binary.
type Hash string

// ZeroHash is the empty hash value.
const ZeroHash Hash = ""

// IsZero reports whether h is the empty hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the hash as a hex string.
func (h Hash) String() string {
	return string(h)
}

// Valid reports whether h is a syntactically valid 64-character hex digest.
func (h Hash) Valid() bool {
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// HexToHash validates and wraps a hex string as a Hash.
func HexToHash(s string) (Hash, error) {
	h := Hash(s)
	if !h.Valid() {
		return "", fmt.Errorf("hash must be 64 hex characters, got %d", len(s))
	}
	return h, nil
}

// MarshalJSON encodes the hash as a JSON string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(h))
}

// UnmarshalJSON decodes a JSON string into a Hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*h = Hash(s)
	return nil
}
