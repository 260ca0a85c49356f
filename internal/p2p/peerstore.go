package p2p

import (
	"github.com/klingnet-chain/klingnet-core/internal/storage"
)

// peerKeyPrefix namespaces persisted peer URIs in the node's storage.DB,
// matching the teacher's PeerStore's "peer/"-prefixed key convention
// (the teacher's own peerstore.go, since deleted — see DESIGN.md).
const peerKeyPrefix = "peer/"

// PeerStore persists the set of known peer URIs across restarts, replacing
// pubsub.py's flat peers.json file (save_peers/load_peers) with the
// node's existing storage.DB so peer data lives alongside chain data
// rather than in a second ad hoc file.
type PeerStore struct {
	db storage.DB
}

// NewPeerStore creates a PeerStore backed by db.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{db: db}
}

// Save records uri as known.
func (ps *PeerStore) Save(uri string) error {
	return ps.db.Put(peerKeyFromURI(uri), []byte{1})
}

// Remove forgets uri.
func (ps *PeerStore) Remove(uri string) error {
	return ps.db.Delete(peerKeyFromURI(uri))
}

// Load returns every persisted peer URI.
func (ps *PeerStore) Load() ([]string, error) {
	var uris []string
	err := ps.db.ForEach([]byte(peerKeyPrefix), func(key, _ []byte) error {
		uris = append(uris, string(key[len(peerKeyPrefix):]))
		return nil
	})
	return uris, err
}

func peerKeyFromURI(uri string) []byte {
	return []byte(peerKeyPrefix + uri)
}
