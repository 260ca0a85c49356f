package p2p

import (
	"testing"

	"github.com/klingnet-chain/klingnet-core/pkg/block"
)

func chainOfHeight(n int) []*block.Block {
	blocks := make([]*block.Block, 0, n+1)
	for h := 0; h <= n; h++ {
		blocks = append(blocks, &block.Block{Header: block.Header{Height: uint64(h), Hash: block.Header{}.Hash}})
	}
	return blocks
}

func TestHandleReqBlocksSendsOneChunk(t *testing.T) {
	chain := &fakeChain{blocks: chainOfHeight(10)}
	n := newTestNode(t, chain, newFakeMempool())
	n.chunkSize = 3
	// Two peers recorded so the single-peer full-chain branch doesn't fire.
	n.peers["ws://a"] = &peerConn{uri: "ws://a"}
	n.peers["ws://b"] = &peerConn{uri: "ws://b"}

	src := &fakeReplySender{uri: "ws://a"}
	env := mustEnvelope(TagReqBlocks, "peer", 0)
	n.handleReqBlocks(env, src)

	if len(src.sent) != 1 || src.sent[0].Type != TagRespBlocks {
		t.Fatalf("expected one RESPONSE_BLOCKS reply, got %+v", src.sent)
	}
	var blocks []*block.Block
	if err := unmarshalData(src.sent[0], &blocks); err != nil {
		t.Fatalf("unmarshalData: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected a 3-block chunk, got %d", len(blocks))
	}
}

func TestHandleReqBlocksSendsFullChainToOnlyPeer(t *testing.T) {
	chain := &fakeChain{blocks: chainOfHeight(10)}
	n := newTestNode(t, chain, newFakeMempool())
	n.chunkSize = 3
	n.peers["ws://a"] = &peerConn{uri: "ws://a"}

	src := &fakeReplySender{uri: "ws://a"}
	env := mustEnvelope(TagReqBlocks, "peer", 0)
	n.handleReqBlocks(env, src)

	var blocks []*block.Block
	if err := unmarshalData(src.sent[0], &blocks); err != nil {
		t.Fatalf("unmarshalData: %v", err)
	}
	if len(blocks) != 11 {
		t.Fatalf("expected the full remaining chain (11 blocks) for a single peer, got %d", len(blocks))
	}
}

func TestHandleRespBlocksRequestsNextChunkUntilTarget(t *testing.T) {
	chain := &fakeChain{blocks: chainOfHeight(2)}
	n := newTestNode(t, chain, newFakeMempool())
	n.syncingChain = true
	n.sync = syncState{peerURI: "ws://a", targetLength: 5}

	src := &fakeReplySender{uri: "ws://a"}
	received := []*block.Block{{Header: block.Header{Height: 3}}}
	env := mustEnvelope(TagRespBlocks, "peer", received)
	n.handleRespBlocks(env, src)

	if len(chain.blocks) != 4 {
		t.Fatalf("expected the received block appended, chain length %d", len(chain.blocks))
	}
	if !n.syncingChain {
		t.Fatal("sync should still be in progress: target length not yet reached")
	}
	if len(src.sent) != 1 || src.sent[0].Type != TagReqBlocks {
		t.Fatalf("expected a follow-up REQUEST_BLOCKS, got %+v", src.sent)
	}
}

func TestHandleRespBlocksFinishesAtTarget(t *testing.T) {
	chain := &fakeChain{blocks: chainOfHeight(2)}
	n := newTestNode(t, chain, newFakeMempool())
	n.syncingChain = true
	n.sync = syncState{peerURI: "ws://a", targetLength: 4}

	src := &fakeReplySender{uri: "ws://a"}
	received := []*block.Block{{Header: block.Header{Height: 3}}}
	env := mustEnvelope(TagRespBlocks, "peer", received)
	n.handleRespBlocks(env, src)

	if n.syncingChain {
		t.Fatal("expected sync to finish once the target length is reached")
	}
	for _, e := range src.sent {
		if e.Type == TagReqBlocks {
			t.Fatal("must not request further chunks after reaching the target length")
		}
	}
}

func TestHandleRespChainLenStartsSyncWhenPeerIsAhead(t *testing.T) {
	chain := &fakeChain{blocks: chainOfHeight(2)}
	n := newTestNode(t, chain, newFakeMempool())
	src := &fakeReplySender{uri: "ws://a"}

	env := mustEnvelope(TagRespChainLen, "peer", 5)
	n.handleRespChainLen(env, src)

	if !n.syncingChain {
		t.Fatal("expected syncingChain to be set when the peer reports a longer chain")
	}
	if n.sync.targetLength != 5 {
		t.Fatalf("expected target length 5, got %d", n.sync.targetLength)
	}
	if len(src.sent) != 1 || src.sent[0].Type != TagReqBlocks {
		t.Fatalf("expected a REQUEST_BLOCKS kickoff, got %+v", src.sent)
	}
}

func TestHandleRespChainLenIgnoresShorterPeer(t *testing.T) {
	chain := &fakeChain{blocks: chainOfHeight(5)}
	n := newTestNode(t, chain, newFakeMempool())
	src := &fakeReplySender{uri: "ws://a"}

	env := mustEnvelope(TagRespChainLen, "peer", 2)
	n.handleRespChainLen(env, src)

	if n.syncingChain {
		t.Fatal("must not start a sync against a peer reporting a shorter chain")
	}
	if len(src.sent) != 0 {
		t.Fatalf("expected no outbound message, got %+v", src.sent)
	}
}
