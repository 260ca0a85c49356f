package p2p

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// ConnectToPeer dials uri directly, retrying with exponential backoff
// starting at 2s up to cfg.MaxDirectRetries attempts; once exhausted it
// falls back to relaying through the boot node instead of giving up.
// Grounded on pubsub.py's connect_to_peer.
func (n *Node) ConnectToPeer(uri string, attempt int) {
	if uri == n.cfg.PublicURI {
		return
	}
	n.mu.Lock()
	_, already := n.peers[uri]
	n.mu.Unlock()
	if already {
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(uri, nil)
	if err != nil {
		n.logger.Warn().Str("peer", uri).Int("attempt", attempt+1).Err(err).Msg("direct connect failed")
		if attempt+1 < n.cfg.MaxDirectRetries {
			backoff := time.Duration(2<<uint(attempt)) * time.Second
			select {
			case <-time.After(backoff):
			case <-n.ctx.Done():
				return
			}
			n.ConnectToPeer(uri, attempt+1)
			return
		}
		n.logger.Info().Str("peer", uri).Msg("max direct retries reached, switching to relay")
		n.fallbackToRelay(uri)
		return
	}

	n.logger.Info().Str("peer", uri).Msg("connected to peer")
	n.handleConnection(uri, conn)
}

// fallbackToRelay establishes (or reuses) a relay connection for uri via
// the boot node and forwards the initial handshake messages over it,
// matching connect_to_peer's post-max-retries relay branch.
func (n *Node) fallbackToRelay(uri string) {
	if !n.ensureRelayConnection(uri) {
		return
	}
	_ = n.relayMessage(uri, mustEnvelope(TagReqChainLen, n.nodeID, nil))
	n.mu.Lock()
	due := !n.txPoolSyncing && time.Since(n.lastTxPoolReq) > n.cfg.TxPoolCooldown
	if due {
		n.txPoolSyncing = true
		n.lastTxPoolReq = time.Now()
	}
	n.mu.Unlock()
	if due {
		_ = n.relayMessage(uri, mustEnvelope(TagReqTxPool, n.nodeID, nil))
	}
}

// registerWithBootNode dials the boot node, announces our public URI, and
// keeps the connection open to receive PEER_LIST announcements. A failed
// dial is retried with exponential backoff starting at 5s, up to
// cfg.MaxBootRetries attempts; once connected, a dropped connection waits
// 5s and starts again from attempt 0. Grounded on pubsub.py's
// register_with_boot_node.
func (n *Node) registerWithBootNode(attempt int) {
	if attempt >= n.cfg.MaxBootRetries {
		n.logger.Error().Str("boot_node", n.cfg.BootNodeURI).Msg("max retries reached registering with boot node")
		return
	}

	conn, _, err := websocket.DefaultDialer.Dial(n.cfg.BootNodeURI, nil)
	if err != nil {
		n.logger.Error().Err(err).Str("boot_node", n.cfg.BootNodeURI).Msg("failed to connect to boot node")
		n.sleepOrStop(5 * time.Second * time.Duration(1<<uint(attempt)))
		n.registerWithBootNode(attempt + 1)
		return
	}
	defer conn.Close()

	n.logger.Info().Str("boot_node", n.cfg.BootNodeURI).Msg("connected to boot node")
	if err := conn.WriteMessage(websocket.BinaryMessage, mustEncode(mustEnvelope(TagRegisterPeer, n.nodeID, n.cfg.PublicURI))); err != nil {
		n.logger.Error().Err(err).Msg("failed to register with boot node")
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			n.logger.Warn().Err(err).Msg("boot node connection closed")
			n.sleepOrStop(5 * time.Second)
			n.registerWithBootNode(0)
			return
		}
		env, err := decode(raw)
		if err != nil {
			continue
		}
		if env.Type != TagPeerList {
			continue
		}
		n.handlePeerList(env)
	}
}

func (n *Node) sleepOrStop(d time.Duration) {
	select {
	case <-time.After(d):
	case <-n.ctx.Done():
	}
}

// handlePeerList connects to every peer URI the boot node (or a direct
// peer) announced that we don't already know about, matching
// pubsub.py's MSG_PEER_LIST handler.
func (n *Node) handlePeerList(env Envelope) {
	var uris []string
	if err := unmarshalData(env, &uris); err != nil {
		return
	}
	for _, uri := range uris {
		if uri == n.nodeID || uri == n.cfg.PublicURI || validatedURI(uri) != nil {
			continue
		}
		n.mu.Lock()
		_, isPeer := n.peers[uri]
		isKnown := n.known[uri]
		if !isPeer && !isKnown {
			n.known[uri] = true
		}
		shouldConnect := !isPeer && !isKnown
		n.mu.Unlock()
		if shouldConnect {
			if n.store != nil {
				_ = n.store.Save(uri)
			}
			go n.ConnectToPeer(uri, 0)
		}
	}
}

func mustEncode(env Envelope) []byte {
	raw, err := encode(env)
	if err != nil {
		panic(err)
	}
	return raw
}

func validatedURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid peer uri %q: %w", uri, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("peer uri %q must use ws:// or wss://", uri)
	}
	return nil
}
