package mempool

import (
	"fmt"

	"github.com/klingnet-chain/klingnet-core/pkg/tx"
)

// DefaultMaxTxSize bounds a single transaction's estimated wire size —
// independent of and stricter than the block size limit, as defense
// against a single oversized transaction crowding out the pool.
const DefaultMaxTxSize = 100_000

// Policy defines mempool acceptance rules that sit alongside, not
// instead of, consensus validation (tx.Validate) — node-local knobs
// that can vary between peers without a consensus disagreement.
type Policy struct {
	MaxTxSize int
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{MaxTxSize: DefaultMaxTxSize}
}

// Check applies policy rules to t, independent of consensus validity.
func (p *Policy) Check(t *tx.Transaction) error {
	if p.MaxTxSize > 0 && t.Size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", t.Size, p.MaxTxSize)
	}
	return nil
}
