// Package rpc exposes the node's external API surface: block and
// transaction lookups, mempool/fee-rate queries, transaction submission
// and triggering a mine. Grounded on the teacher's internal/rpc/server.go
// (IP allowlist, CORS, a single *http.Server the Start/Stop lifecycle
// wraps) and on
// original_source/backend/routers/{blockchain,transaction,wallet}.py for
// the endpoint set itself — the teacher's JSON-RPC 2.0 envelope is
// dropped in favor of the plain REST shape spec.md §6 names, since there
// is no batch-call or multi-chain-ID use case here to justify it.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/internal/chain"
	"github.com/klingnet-chain/klingnet-core/internal/feerate"
	klog "github.com/klingnet-chain/klingnet-core/internal/log"
	"github.com/klingnet-chain/klingnet-core/internal/mempool"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/rs/zerolog"
)

// Broadcaster gossips a locally-submitted transaction or freshly mined
// block to the rest of the network. Satisfied by *internal/p2p.Node;
// kept as a small interface so the RPC package never imports p2p
// directly. A nil Broadcaster (p2p disabled) makes handleSubmitTx and
// handleMine local-only, same as running without peers.
type Broadcaster interface {
	BroadcastTransaction(t *tx.Transaction)
	BroadcastBlock(b *block.Block)
}

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the node's HTTP API server.
//
// Mining has no dedicated worker field: spec.md's /mine endpoint takes
// the target miner address per request (route_mine's miner_address
// body field), so each call builds a one-shot internal/miner.Miner for
// that address rather than the server owning a single fixed one.
type Server struct {
	addr    string
	params  *config.Params
	chain   *chain.Chain
	pool    *mempool.Pool
	feeRate *feerate.Estimator
	bcast   Broadcaster

	server *http.Server
	logger zerolog.Logger
	ln     net.Listener

	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// AllowedIPs and CORSOrigins carry the operator-configured RPC access
// controls, kept as a small options struct (rather than variadic params)
// matching the teacher's config.RPCConfig shape.
type Options struct {
	AllowedIPs  []string
	CORSOrigins []string
}

// New creates an API server bound to addr. opts is optional; a zero
// Options allows all IPs and disables CORS.
func New(addr string, params *config.Params, ch *chain.Chain, pool *mempool.Pool, feeRate *feerate.Estimator, opts ...Options) *Server {
	s := &Server{
		addr:    addr,
		params:  params,
		chain:   ch,
		pool:    pool,
		feeRate: feeRate,
		logger:  klog.RPC,
	}

	if len(opts) > 0 {
		s.allowedNets = parseAllowedIPs(opts[0].AllowedIPs)
		s.corsOrigins = opts[0].CORSOrigins
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine. It
// returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("rpc server error")
		}
	}()

	return nil
}

// SetBroadcaster wires a peer-gossip layer into the server so submitted
// transactions and mined blocks reach the rest of the network. Optional:
// without it the server works as a local-only node.
func (s *Server) SetBroadcaster(b Broadcaster) {
	s.bcast = b
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleStatus)
	mux.HandleFunc("/health", s.handleStatus)
	mux.HandleFunc("/mine", s.handleMine)
	mux.HandleFunc("/blockchain", s.handleBlockchain)
	mux.HandleFunc("/blockchain/paginated", s.handlePaginatedBlocks)
	mux.HandleFunc("/blockchain/latest", s.handleLatestBlocks)
	mux.HandleFunc("/blockchain/height", s.handleHeight)
	mux.HandleFunc("/blockchain/halving", s.handleHalving)
	mux.HandleFunc("/blockchain/height/", s.handleBlockByHeight)
	mux.HandleFunc("/blockchain/hash/", s.handleBlockByHash)
	mux.HandleFunc("/blockchain/tx/", s.handleBlockTx)
	mux.HandleFunc("/transactions", s.handleTransactions)
	mux.HandleFunc("/transactions/address/", s.handleTransactionsByAddress)
	mux.HandleFunc("/wallet/", s.handleWalletInfo)
	mux.HandleFunc("/fee-rate", s.handleFeeRate)
}

// withMiddleware applies IP filtering and CORS headers ahead of the mux,
// matching the teacher's handleRequest's pre-dispatch checks.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil || !s.isIPAllowed(net.ParseIP(host)) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isIPAllowed(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
