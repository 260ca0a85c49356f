package p2p

import (
	"github.com/klingnet-chain/klingnet-core/pkg/block"
)

// syncState tracks the peer and target length a chain replacement is
// chasing, so a chunked RESPONSE_BLOCKS handler knows whether to request
// the next chunk or stop. Guarded by Node.mu.
type syncState struct {
	peerURI      string
	targetLength uint64
}

// SyncWithPeers nudges every sufficiently-reliable direct peer for a
// fresh chain length, re-entering the reactive
// REQUEST_CHAIN_LENGTH/RESPONSE_CHAIN_LENGTH/REQUEST_BLOCKS exchange that
// also runs whenever a new connection is established. Grounded on
// pubsub.py's sync_with_peers, simplified from its separate HTTP-based
// one-shot chain poll into a periodic re-use of the same message-tag
// protocol handleEnvelope already drives, since a single protocol is
// easier to reason about than a parallel REST sync path (see DESIGN.md).
func (n *Node) SyncWithPeers() {
	n.mu.Lock()
	peers := make([]*peerConn, 0, len(n.peers))
	for uri, pc := range n.peers {
		if n.reliability[uri] < 5 {
			peers = append(peers, pc)
		}
	}
	n.mu.Unlock()

	for _, pc := range peers {
		_ = pc.send(mustEnvelope(TagReqChainLen, n.nodeID, nil))
	}
}

// handleReqChainLen answers a peer's REQUEST_CHAIN_LENGTH with our
// current chain length (block count, not height).
func (n *Node) handleReqChainLen(src replySender) {
	length := len(n.chain.Blocks())
	_ = src.send(mustEnvelope(TagRespChainLen, n.nodeID, length))
}

// handleRespChainLen starts a chunked sync against src if its reported
// length is greater than ours and no sync is already underway; a peer
// whose chain is only as long as ours starts nothing. Grounded on
// pubsub.py's MSG_RESPONSE_CHAIN_LENGTH handler.
func (n *Node) handleRespChainLen(env Envelope, src replySender) {
	var peerLength int
	if err := unmarshalData(env, &peerLength); err != nil {
		return
	}

	n.mu.Lock()
	localLength := len(n.chain.Blocks())
	if peerLength <= localLength || n.syncingChain {
		n.mu.Unlock()
		return
	}
	n.syncingChain = true
	n.sync = syncState{peerURI: src.peerURI(), targetLength: uint64(peerLength)}
	n.mu.Unlock()

	_ = src.send(mustEnvelope(TagReqBlocks, n.nodeID, localLength))
}

// handleReqBlocks answers a REQUEST_BLOCKS(start_height) with either the
// full remaining chain (if src is our only direct peer, matching
// pubsub.py's single-peer full-send branch) or one adaptively-sized
// chunk.
func (n *Node) handleReqBlocks(env Envelope, src replySender) {
	var startHeight int
	if err := unmarshalData(env, &startHeight); err != nil {
		return
	}

	n.mu.Lock()
	onlyPeer := len(n.peers) == 1
	chunkSize := n.chunkSize
	n.mu.Unlock()

	blocks := n.chain.Blocks()
	if startHeight < 0 || startHeight > len(blocks) {
		startHeight = len(blocks)
	}

	var toSend []*block.Block
	if onlyPeer {
		toSend = blocks[startHeight:]
	} else {
		end := startHeight + chunkSize
		if end > len(blocks) {
			end = len(blocks)
		}
		toSend = blocks[startHeight:end]
	}
	_ = src.send(mustEnvelope(TagRespBlocks, n.nodeID, toSend))
}

// handleRespBlocks appends received blocks to the local chain, replaces
// the chain if the result validates, and either requests the next chunk
// or concludes the sync. Matches pubsub.py's MSG_RESPONSE_BLOCKS handler,
// extended to continue chunked fetches until the peer's announced
// target length is reached (see SyncWithPeers's doc comment).
func (n *Node) handleRespBlocks(env Envelope, src replySender) {
	var received []*block.Block
	if err := unmarshalData(env, &received); err != nil {
		n.finishSync(src.peerURI(), false)
		return
	}
	if len(received) == 0 {
		n.finishSync(src.peerURI(), false)
		return
	}

	local := n.chain.Blocks()
	if received[0].Height <= local[len(local)-1].Height {
		n.logger.Warn().Uint64("height", received[0].Height).Msg("ignoring blocks at or behind our tip")
		n.finishSync(src.peerURI(), false)
		return
	}

	candidate := append(append([]*block.Block{}, local...), received...)
	if err := n.chain.ReplaceChain(candidate); err != nil {
		n.logger.Error().Err(err).Msg("failed to replace chain with received blocks")
		n.finishSync(src.peerURI(), false)
		return
	}
	n.pool.ClearFromChain(received)
	n.logger.Info().Int("added", len(received)).Msg("synced blocks from peer")

	n.mu.Lock()
	reachedTarget := uint64(len(candidate)) >= n.sync.targetLength
	n.mu.Unlock()

	n.updateReliability(src.peerURI(), true)
	n.adjustChunkSize(true)

	if reachedTarget {
		n.finishSync(src.peerURI(), true)
		return
	}
	_ = src.send(mustEnvelope(TagReqBlocks, n.nodeID, len(candidate)))
}

// finishSync clears the in-flight sync flag and, on success, kicks off a
// cooldown-gated mempool reconciliation, matching the
// tx_pool_syncing-request tail shared by every successful-sync branch in
// pubsub.py.
func (n *Node) finishSync(peerURI string, success bool) {
	if !success {
		n.updateReliability(peerURI, false)
		n.adjustChunkSize(false)
	}
	n.mu.Lock()
	n.syncingChain = false
	n.sync = syncState{}
	n.mu.Unlock()
	if success {
		n.broadcastReconcileRequest()
	}
}

// handleReqChain answers a full-chain request, matching the single-peer
// bootstrap path in pubsub.py's sync_with_peers/MSG_REQUEST_CHAIN.
func (n *Node) handleReqChain(src replySender) {
	_ = src.send(mustEnvelope(TagRespChain, n.nodeID, n.chain.Blocks()))
}

// handleRespChain replaces the local chain wholesale if the received one
// is longer, matching pubsub.py's MSG_RESPONSE_CHAIN handler.
func (n *Node) handleRespChain(env Envelope, src replySender) {
	var received []*block.Block
	if err := unmarshalData(env, &received); err != nil {
		return
	}

	n.mu.Lock()
	if n.syncingChain {
		n.mu.Unlock()
		return
	}
	n.syncingChain = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.syncingChain = false
		n.mu.Unlock()
	}()

	local := n.chain.Blocks()
	if len(received) < len(local) {
		return
	}
	if err := n.chain.ReplaceChain(received); err != nil {
		n.logger.Error().Err(err).Str("peer", src.peerURI()).Msg("failed to replace chain from full-chain response")
		return
	}
	n.pool.ClearFromChain(received)
	n.logger.Info().Int("length", len(received)).Str("peer", src.peerURI()).Msg("synced full chain from peer")
	n.broadcastReconcileRequest()
}
