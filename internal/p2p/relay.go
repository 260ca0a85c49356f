package p2p

import (
	"github.com/gorilla/websocket"
)

// ensureRelayConnection opens (if needed) a connection to the boot node
// used to relay messages toward targetURI, and starts a background
// reader that unwraps relayed responses. Matches pubsub.py's
// ensure_relay_connection.
func (n *Node) ensureRelayConnection(targetURI string) bool {
	n.mu.Lock()
	if _, ok := n.relay[targetURI]; ok {
		n.mu.Unlock()
		return true
	}
	n.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(n.cfg.BootNodeURI, nil)
	if err != nil {
		n.logger.Error().Err(err).Str("target", targetURI).Msg("failed to establish relay connection")
		return false
	}

	n.mu.Lock()
	n.relay[targetURI] = conn
	n.mu.Unlock()

	if err := conn.WriteMessage(websocket.BinaryMessage, mustEncode(mustEnvelope(TagRegisterPeer, n.nodeID, n.cfg.PublicURI))); err != nil {
		n.logger.Error().Err(err).Msg("failed to register with boot node over relay connection")
	}

	n.wg.Add(1)
	go n.handleRelayResponses(conn, targetURI)
	return true
}

// relayMessage wraps env for targetURI and sends it over the relay
// connection, establishing one first if needed. Matches pubsub.py's
// relay_message.
func (n *Node) relayMessage(targetURI string, env Envelope) bool {
	if !n.ensureRelayConnection(targetURI) {
		n.logger.Error().Str("target", targetURI).Msg("cannot relay message: no relay connection")
		return false
	}

	n.mu.Lock()
	conn := n.relay[targetURI]
	n.mu.Unlock()
	if conn == nil {
		return false
	}

	inner, err := encode(env)
	if err != nil {
		return false
	}
	wrap := mustEnvelope(TagRelayMessage, n.cfg.PublicURI, relayPayload{TargetURI: targetURI, Data: inner})
	raw, err := encode(wrap)
	if err != nil {
		return false
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		n.logger.Error().Err(err).Str("target", targetURI).Msg("failed to relay message")
		_ = conn.Close()
		n.mu.Lock()
		delete(n.relay, targetURI)
		n.mu.Unlock()
		return false
	}
	return true
}

// relayReplySender routes a reply to a relayed message back through the
// boot node to the original sender, the ws_wrapper construct from
// pubsub.py's handle_relay_responses.
type relayReplySender struct {
	node      *Node
	targetURI string
}

func (r relayReplySender) send(env Envelope) error {
	r.node.relayMessage(r.targetURI, env)
	return nil
}

func (r relayReplySender) peerURI() string { return r.targetURI }

// handleRelayResponses reads messages the boot node forwards back to us
// for our relay connection to targetURI, unwrapping RELAY_FAILURE
// specially and otherwise dispatching the relayed payload through the
// normal message handler. Matches pubsub.py's handle_relay_responses.
func (n *Node) handleRelayResponses(conn *websocket.Conn, targetURI string) {
	defer n.wg.Done()
	defer func() {
		n.mu.Lock()
		if n.relay[targetURI] == conn {
			delete(n.relay, targetURI)
		}
		n.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			n.logger.Warn().Err(err).Str("target", targetURI).Msg("relay connection closed")
			return
		}
		env, err := decode(raw)
		if err != nil {
			n.logger.Error().Err(err).Msg("invalid relayed message")
			continue
		}

		if env.Type == TagRelayFailure {
			var failure relayFailurePayload
			if err := unmarshalData(env, &failure); err == nil && failure.TargetURI == targetURI {
				n.logger.Warn().Str("target", targetURI).Str("reason", failure.Reason).Msg("relay failure")
				n.updateReliability(targetURI, false)
				n.removePeer(targetURI)
				return
			}
			continue
		}

		n.handleEnvelope(env, relayReplySender{node: n, targetURI: targetURI})
	}
}
