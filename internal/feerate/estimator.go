// Package feerate estimates a fee rate that scales with network load.
package feerate

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
)

// ChainView is the read-only chain state the estimator measures recent
// block fullness from.
type ChainView interface {
	RecentBlocks(n int) []*block.Block
}

// MempoolView is the read-only mempool state the estimator measures
// pending-transaction pressure from.
type MempoolView interface {
	Count() int
}

const recentBlockWindow = 10

// Estimator tracks a fee rate (coins per byte) that scales up with
// mempool size and recent block fullness, and back down to
// params.DefaultFeeRate once both subside.
//
// Grounded on
// original_source/backend/services/fee_rate_estimator.py's
// FeeRateEstimator: current_fee_rate/last_update state behind a single
// lock, a rate-limited recompute (update_fee_rate) and a read path
// (get_fee_rate) that fires the recompute off asynchronously
// (asyncio.ensure_future) rather than blocking the caller on it. The Go
// port realizes the same non-blocking-read contract with a
// sync.Mutex-guarded state pair plus an atomic flag that collapses
// concurrent recompute requests into a single in-flight goroutine.
type Estimator struct {
	params  *config.Params
	chain   ChainView
	mempool MempoolView

	mu         sync.Mutex
	rate       float64
	lastUpdate int64 // unix seconds

	recomputing atomic.Bool
}

// New returns an estimator seeded at params.DefaultFeeRate.
func New(params *config.Params, chain ChainView, mempool MempoolView) *Estimator {
	return &Estimator{
		params:  params,
		chain:   chain,
		mempool: mempool,
		rate:    params.DefaultFeeRate,
	}
}

// Rate returns the current fee rate, triggering a non-blocking recompute
// in the background if the last one is older than
// params.FeeRateUpdateInterval seconds. It never blocks on the
// recompute, mirroring get_fee_rate's fire-and-forget ensure_future.
func (e *Estimator) Rate() float64 {
	e.ensureUpdated()
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *Estimator) ensureUpdated() {
	e.mu.Lock()
	stale := time.Now().Unix()-e.lastUpdate > int64(e.params.FeeRateUpdateInterval)
	e.mu.Unlock()
	if !stale {
		return
	}
	if !e.recomputing.CompareAndSwap(false, true) {
		return // a recompute is already in flight
	}
	go func() {
		defer e.recomputing.Store(false)
		e.update()
	}()
}

// BlockFullness returns the current recent-block-fullness measurement
// (the same figure the fee rate calculation itself scales by), for
// callers (the RPC fee-rate endpoint) that want to report it directly
// rather than re-derive it.
func (e *Estimator) BlockFullness() float64 {
	return e.recentBlockFullness()
}

// update recomputes the fee rate synchronously. Exported for callers
// (e.g. a periodic background task) that want to force a recompute
// rather than wait for Rate's lazy, rate-limited trigger.
func (e *Estimator) Update() {
	e.update()
}

func (e *Estimator) update() {
	mempoolSize := e.mempool.Count()
	fullness := e.recentBlockFullness()

	rate := e.params.DefaultFeeRate
	if mempoolSize > e.params.MempoolThreshold {
		rate *= 1 + (float64(mempoolSize)/float64(e.params.MempoolThreshold))*0.5
	}
	if fullness > e.params.BlockFullnessThreshold {
		rate *= 1 + (fullness/e.params.BlockFullnessThreshold)*0.3
	}
	if rate < e.params.DefaultFeeRate {
		rate = e.params.DefaultFeeRate
	}

	e.mu.Lock()
	e.rate = rate
	e.lastUpdate = time.Now().Unix()
	e.mu.Unlock()
}

// recentBlockFullness is the average, over the last recentBlockWindow
// blocks (or fewer if the chain is shorter), of each block's
// JSON-encoded (encoding/json) transaction-list size as a fraction of
// params.BlockSizeLimit.
func (e *Estimator) recentBlockFullness() float64 {
	blocks := e.chain.RecentBlocks(recentBlockWindow)
	if len(blocks) == 0 {
		return 0
	}
	var totalBytes int
	for _, blk := range blocks {
		encoded, err := json.Marshal(blk.Data)
		if err != nil {
			continue
		}
		totalBytes += len(encoded)
	}
	return float64(totalBytes) / (float64(len(blocks)) * float64(e.params.BlockSizeLimit))
}
