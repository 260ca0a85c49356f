// Package p2p implements the node's peer-to-peer networking: a boot-node
// rendezvous protocol, direct WebSocket connections with relay fallback,
// chain synchronization and transaction/block gossip.
//
// Grounded on original_source/backend/services/pubsub.py's PubSub class.
// The teacher's internal/p2p used libp2p (GossipSub topics, a Kademlia
// DHT, mDNS discovery) which has no equivalent in spec.md §4.11's
// protocol: peers rendezvous through a single well-known boot node and
// exchange explicitly tagged JSON messages over plain WebSocket
// connections, falling back to relaying through the boot node when a
// direct connection cannot be established. This package is a from-scratch
// implementation of that protocol, written in the teacher's idiom
// (mutex-guarded state, storage.DB-backed persistence, small
// reader-defined interfaces, zerolog component logging) rather than a
// port of the libp2p code, since the transport models share nothing
// below the message envelope.
package p2p

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
)

// Message tags, grounded on pubsub.py's MSG_* constants (§4.11).
const (
	TagRegisterPeer  = "REGISTER_PEER"
	TagPeerList      = "PEER_LIST"
	TagReqChainLen   = "REQUEST_CHAIN_LENGTH"
	TagRespChainLen  = "RESPONSE_CHAIN_LENGTH"
	TagReqBlocks     = "REQUEST_BLOCKS"
	TagRespBlocks    = "RESPONSE_BLOCKS"
	TagReqChain      = "REQUEST_CHAIN"
	TagRespChain     = "RESPONSE_CHAIN"
	TagNewBlock      = "NEW_BLOCK"
	TagNewTx         = "NEW_TX"
	TagReqTxPool     = "REQUEST_TX_POOL"
	TagRespTxPool    = "RESPONSE_TX_POOL"
	TagReqTx         = "REQUEST_TX"
	TagRespTx        = "RESPONSE_TX"
	TagRelayMessage  = "RELAY_MESSAGE"
	TagRelayFailure  = "RELAY_FAILURE"
)

// Envelope is the wire message every connection exchanges, gzip-compressed
// canonical JSON. Grounded on pubsub.py's create_message/parse_message:
// {"type", "data", "from"}, data left as json.RawMessage since its shape
// depends on Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	From string          `json:"from"`
}

// relayPayload is Envelope.Data's shape when Type is TagRelayMessage,
// matching relay_message's relay_msg["data"].
type relayPayload struct {
	TargetURI string `json:"target_uri"`
	Data      []byte `json:"data"` // gzip-compressed inner envelope, base64 via encoding/json's []byte handling
}

// relayFailurePayload is Envelope.Data's shape when Type is
// TagRelayFailure, matching the boot node's relay-failure notification.
type relayFailurePayload struct {
	TargetURI string `json:"target_uri"`
	Reason    string `json:"reason"`
}

// newEnvelope builds an envelope carrying data, marshaled to JSON.
func newEnvelope(msgType string, from string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Data: raw, From: from}, nil
}

// encode compresses env as gzip'd JSON, the wire format every connection
// in this package reads and writes. Grounded on pubsub.py's
// compress_data: json.dumps then gzip.compress. gzip is used as-is from
// compress/gzip; no example repo in the pack offers a third-party
// compression codec with wider reach than the standard library's here.
func encode(env Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("compress envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// decode reverses encode. Grounded on pubsub.py's decompress_data /
// parse_message, which accept both gzip bytes and plain JSON text; this
// node always sends gzip but tolerates a plain-JSON peer for forward
// compatibility with a future wire change.
func decode(raw []byte) (Envelope, error) {
	var env Envelope
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		if jerr := json.Unmarshal(raw, &env); jerr == nil {
			return env, nil
		}
		return Envelope{}, fmt.Errorf("decode message: %w", err)
	}
	defer gr.Close()
	body, err := io.ReadAll(gr)
	if err != nil {
		return Envelope{}, fmt.Errorf("decompress message: %w", err)
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// unmarshalData decodes env.Data into v.
func unmarshalData(env Envelope, v interface{}) error {
	if len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, v)
}
