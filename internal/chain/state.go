package chain

import "github.com/klingnet-chain/klingnet-core/pkg/types"

// State holds the current chain tip.
type State struct {
	Height  uint64
	TipHash types.Hash
}
