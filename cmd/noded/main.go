// Klingnet full node daemon.
//
// Usage:
//
//	noded [--mine --coinbase=...] Run node
//	noded --help                  Show help
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/internal/chain"
	"github.com/klingnet-chain/klingnet-core/internal/feerate"
	klog "github.com/klingnet-chain/klingnet-core/internal/log"
	"github.com/klingnet-chain/klingnet-core/internal/mempool"
	"github.com/klingnet-chain/klingnet-core/internal/miner"
	"github.com/klingnet-chain/klingnet-core/internal/p2p"
	"github.com/klingnet-chain/klingnet-core/internal/rpc"
	"github.com/klingnet-chain/klingnet-core/internal/storage"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
	"github.com/rs/zerolog"
)

// flags mirrors the teacher's cmd/klingnetd flag surface, trimmed to the
// settings this rewrite actually has: no --validator-key or
// --mine-subchains, since there is no PoA/sub-chain engine here.
type flags struct {
	datadir string

	p2pEnabled bool
	p2pListen  string
	p2pPublic  string
	bootNode   string

	rpcEnabled bool
	rpcAddr    string
	rpcPort    int
	allowedIPs string

	mine     bool
	coinbase string

	logLevel string
	logJSON  bool
}

func parseFlags() flags {
	def := config.Default()
	var f flags
	flag.StringVar(&f.datadir, "datadir", def.DataDir, "data directory")

	flag.BoolVar(&f.p2pEnabled, "p2p", def.P2P.Enabled, "enable the peer engine")
	flag.StringVar(&f.p2pListen, "p2p-listen", fmt.Sprintf("%s:%d", def.P2P.ListenAddr, def.P2P.Port), "address to accept peer connections on")
	flag.StringVar(&f.p2pPublic, "p2p-public", "", "externally reachable ws:// address to advertise to the boot node (empty disables registration)")
	flag.StringVar(&f.bootNode, "bootnode", def.P2P.BootNode, "boot node websocket URI")

	flag.BoolVar(&f.rpcEnabled, "rpc", def.RPC.Enabled, "enable the HTTP API server")
	flag.StringVar(&f.rpcAddr, "rpc-addr", def.RPC.Addr, "RPC bind address")
	flag.IntVar(&f.rpcPort, "rpc-port", def.RPC.Port, "RPC bind port")
	flag.StringVar(&f.allowedIPs, "rpc-allow", strings.Join(def.RPC.AllowedIPs, ","), "comma-separated list of IPs/CIDRs allowed to call the RPC server")

	flag.BoolVar(&f.mine, "mine", def.Mining.Enabled, "mine blocks paying --coinbase")
	flag.StringVar(&f.coinbase, "coinbase", def.Mining.Coinbase, "address mined block rewards are paid to")

	flag.StringVar(&f.logLevel, "log-level", def.Log.Level, "log level: debug, info, warn, error")
	flag.BoolVar(&f.logJSON, "log-json", def.Log.JSON, "emit logs as JSON")

	flag.Parse()
	return f
}

func main() {
	// ── 1. Parse flags ───────────────────────────────────────────────────
	f := parseFlags()

	// ── 2. Init logger ───────────────────────────────────────────────────
	if err := klog.Init(f.logLevel, f.logJSON, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("node")

	params := config.DefaultParams()

	// ── 3. Open storage ──────────────────────────────────────────────────
	if err := os.MkdirAll(f.datadir, 0755); err != nil {
		logger.Fatal().Err(err).Str("path", f.datadir).Msg("Failed to create data directory")
	}
	blocksDir := (&config.Config{DataDir: f.datadir}).BlocksDir()
	db, err := storage.NewBadger(blocksDir)
	if err != nil {
		logger.Fatal().Err(err).Str("path", blocksDir).Msg("Failed to open database")
	}
	defer db.Close()
	logger.Info().Str("path", blocksDir).Msg("Database opened")

	// ── 4. Create chain (auto-bootstraps genesis) ────────────────────────
	ch, err := chain.New(params, db)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create chain")
	}
	logger.Info().
		Uint64("height", ch.Height()).
		Str("tip", string(ch.Tip().Hash)).
		Msg("Chain ready")

	// ── 5. Create mempool and fee-rate estimator ──────────────────────────
	pool := mempool.New(params, ch.UTXOView(), 5000)
	feeEstimator := feerate.New(params, ch, pool)
	logger.Info().Msg("Mempool and fee estimator ready")

	// ── 6. Resolve coinbase address (needed for --mine) ───────────────────
	var coinbaseAddr types.Address
	if f.coinbase != "" {
		coinbaseAddr, err = types.ParseAddress(f.coinbase)
		if err != nil {
			logger.Fatal().Err(err).Str("coinbase", f.coinbase).Msg("Invalid coinbase address")
		}
	}
	if f.mine && coinbaseAddr.IsZero() {
		logger.Fatal().Msg("--mine requires --coinbase")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── 7. Create P2P node ────────────────────────────────────────────────
	var p2pNode *p2p.Node
	if f.p2pEnabled {
		p2pNode = p2p.New(p2p.Config{
			ListenAddr:  f.p2pListen,
			PublicURI:   f.p2pPublic,
			BootNodeURI: f.bootNode,
			DB:          db,
		}, params, ch, pool)

		if err := p2pNode.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start P2P")
		}
		defer p2pNode.Stop()
		logger.Info().Str("listen", p2pNode.Addr()).Str("bootnode", f.bootNode).Msg("P2P node started")
	} else {
		logger.Info().Msg("P2P disabled, running as a local-only node")
	}

	// ── 8. Start RPC server ───────────────────────────────────────────────
	if f.rpcEnabled {
		rpcAddr := fmt.Sprintf("%s:%d", f.rpcAddr, f.rpcPort)
		rpcServer := rpc.New(rpcAddr, params, ch, pool, feeEstimator, rpc.Options{
			AllowedIPs: splitNonEmpty(f.allowedIPs),
		})
		if p2pNode != nil {
			rpcServer.SetBroadcaster(p2pNode)
		}
		if err := rpcServer.Start(); err != nil {
			logger.Fatal().Err(err).Str("addr", rpcAddr).Msg("Failed to start RPC server")
		}
		defer rpcServer.Stop()
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Info().Msg("RPC disabled")
	}

	// ── 9. Start mining loop ──────────────────────────────────────────────
	if f.mine {
		go runMiner(ctx, params, ch, pool, p2pNode, coinbaseAddr, logger)
		logger.Info().Str("coinbase", string(coinbaseAddr)).Msg("Block production enabled")
	}

	// ── 10. Startup banner ────────────────────────────────────────────────
	logger.Info().
		Uint64("height", ch.Height()).
		Bool("mining", f.mine).
		Bool("p2p", f.p2pEnabled).
		Msg("Node started successfully")

	// ── 11. Wait for shutdown ─────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	cancel()
	logger.Info().Msg("Goodbye!")
}

// runMiner repeatedly produces and applies blocks until ctx is cancelled.
// Each block's proof-of-work search blocks until found or ctx is
// cancelled, so there is no separate sleep between attempts: a cancelled
// search simply returns and the loop exits. Grounded on the teacher's
// background runMiner goroutine, trimmed of the PoA stabilization delay
// and validator-tracker wiring this spec's single-node mining has no use
// for.
func runMiner(ctx context.Context, params *config.Params, ch *chain.Chain, pool *mempool.Pool,
	p2pNode *p2p.Node, coinbaseAddr types.Address, logger zerolog.Logger) {

	m := miner.New(params, ch, pool, coinbaseAddr, 0)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := m.ProduceBlock(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("failed to produce block")
			continue
		}

		if err := ch.ProcessBlock(blk); err != nil {
			logger.Warn().Err(err).Msg("mined block rejected by own chain")
			continue
		}
		pool.ClearFromChain([]*block.Block{blk})
		if p2pNode != nil {
			p2pNode.BroadcastBlock(blk)
		}

		logger.Info().
			Uint64("height", blk.Height).
			Str("hash", string(blk.Hash)).
			Int("txs", len(blk.Data)).
			Msg("block mined")
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
