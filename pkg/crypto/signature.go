package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

// PrivateKey wraps a secp256k1 private key used to sign the wire-format
// messages described in spec.md §4.4 rule 5. Key *generation* lives outside
// the core (wallet is an external collaborator per spec.md §1) — this type
// exists only so the node's own test suite can produce valid signatures
// without depending on an external wallet process. Coinbase transactions
// carry the literal "coinbase" signature and are not signed with it.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PublicKeyHex returns the uncompressed public key, hex-encoded.
func (pk *PrivateKey) PublicKeyHex() string {
	return hex.EncodeToString(pk.key.PubKey().SerializeUncompressed())
}

// Address derives the Ethereum-style address for this key's public key.
func (pk *PrivateKey) Address() types.Address {
	return AddressFromPubKeyHex(pk.PublicKeyHex())
}

// SignMessage signs msg (typically the output of BuildSignedMessage) and
// returns a hex-encoded recoverable signature.
func (pk *PrivateKey) SignMessage(msg string) (string, error) {
	raw := sha256Sum(msg)
	sig := ecdsa.SignCompact(pk.key, raw, true)
	return "0x" + hex.EncodeToString(sig), nil
}

// BuildSignedMessage reproduces spec.md §4.4 rule 5's signed-message
// format bit-exactly: "{recipient}:{amount+0.00001:.5f}:{priority}:{public_key}".
func BuildSignedMessage(recipient types.Address, amount types.MicroAmount, priority, publicKeyHex string) string {
	return fmt.Sprintf("%s:%s:%s:%s", recipient, amount.SignatureDecimal(), priority, publicKeyHex)
}

// RecoverAddress recovers the signer's address from a recoverable
// signature over msg, per spec.md §4.4 rule 5 ("recover the signer address
// from the signature"). The signature is the hex string (optionally
// "0x"-prefixed) produced by SignMessage/ecdsa.SignCompact.
func RecoverAddress(msg string, signatureHex string) (types.Address, error) {
	sigBytes, err := decodeHexSignature(signatureHex)
	if err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}

	raw := sha256Sum(msg)

	pubKey, _, err := ecdsa.RecoverCompact(sigBytes, raw)
	if err != nil {
		return "", fmt.Errorf("recover public key: %w", err)
	}

	return AddressFromPubKeyHex(hex.EncodeToString(pubKey.SerializeUncompressed())), nil
}

func sha256Sum(msg string) []byte {
	digest := Sha256Hex([]byte(msg))
	raw, _ := hex.DecodeString(digest.String())
	return raw
}

func decodeHexSignature(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 65 {
		return nil, fmt.Errorf("signature must be 65 bytes, got %d", len(b))
	}
	return b, nil
}

// Keccak256 computes the Keccak-256 digest of data (used only for address
// derivation, matching the addressing scheme of the original Python
// source's eth_account-based wallet — NOT used for consensus hashing,
// which is SHA-256 per spec.md §4.1).
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// AddressFromPubKeyHex derives an address from an uncompressed
// (0x04-prefixed, 65-byte) public key, hex-encoded: Keccak256 of the
// 64-byte X||Y portion, last 20 bytes, "0x"-hex-encoded.
func AddressFromPubKeyHex(pubKeyHex string) types.Address {
	pubKeyHex = strings.TrimPrefix(pubKeyHex, "0x")
	b, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(b) == 0 {
		return ""
	}
	if b[0] == 0x04 && len(b) == 65 {
		b = b[1:]
	}
	digest := Keccak256(b)
	return types.Address("0x" + hex.EncodeToString(digest[len(digest)-20:]))
}
