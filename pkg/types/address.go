package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CoinbaseAddress is the literal sender/issuer address for protocol-minted
// coinbase transactions.
const CoinbaseAddress Address = "coinbase"

// Address is an opaque, non-empty identifier for a sender or recipient.
// The node does not mint or generate addresses (key generation is an
// external wallet concern) — it only parses, compares and hashes them.
// Address equality for the coinbase literal and for signature-recovery
// matches is case-insensitive, per spec; callers that need a normalized
// key should use Address.Canonical().
type Address string

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool {
	return a == ""
}

// IsCoinbase reports whether a is the protocol issuer address.
func (a Address) IsCoinbase() bool {
	return strings.EqualFold(string(a), string(CoinbaseAddress))
}

// Canonical returns a case-folded form suitable for map keys and
// case-insensitive comparisons (signature recovery, coinbase checks).
func (a Address) Canonical() Address {
	return Address(strings.ToLower(string(a)))
}

// Equal reports whether two addresses are equal case-insensitively.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// String returns the address as a plain string.
func (a Address) String() string {
	return string(a)
}

// ParseAddress validates a non-empty address string.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return "", fmt.Errorf("address must not be empty")
	}
	return Address(s), nil
}

// MarshalJSON encodes the address as a JSON string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON decodes a JSON string into an address. Empty strings are
// accepted here (structural zero value); semantic non-emptiness is
// enforced by validators that require a populated address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = Address(s)
	return nil
}
