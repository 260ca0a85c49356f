package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/klingnet-chain/klingnet-core/internal/miner"
	"github.com/klingnet-chain/klingnet-core/pkg/block"
	"github.com/klingnet-chain/klingnet-core/pkg/tx"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// handleMine mines a block paying the requester's address, grounded on
// original_source/backend/routers/blockchain.py's route_mine: the miner
// includes the pool's transactions in priority order without
// re-validating them, so if the chain rejects the mined block the whole
// mine fails with that error; on success the confirmed transactions are
// cleared from the pool afterward.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req mineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	minerAddr := types.Address(req.MinerAddress)
	if minerAddr.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("miner_address is required"))
		return
	}

	m := miner.New(s.params, s.chain, s.pool, minerAddr, 0)
	blk, err := m.ProduceBlock(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("mining failed: %w", err))
		return
	}
	if err := s.chain.ProcessBlock(blk); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("mining failed: %w", err))
		return
	}
	s.pool.ClearFromChain([]*block.Block{blk})
	if s.bcast != nil {
		s.bcast.BroadcastBlock(blk)
	}

	coinbase := blk.Data[0]
	var reward types.MicroAmount
	for _, amount := range coinbase.Output {
		reward = amount
	}

	writeJSON(w, http.StatusOK, mineResponse{
		Message:          "Block mined successfully",
		Block:            blk,
		Reward:           int64(reward),
		ConfirmedBalance: int64(s.chain.Balance(minerAddr)),
	})
}

func (s *Server) handleBlockchain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.Blocks())
}

func (s *Server) handlePaginatedBlocks(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if page < 1 {
		page = 1
	}

	blocks := s.chain.Blocks()
	total := len(blocks)
	totalPages := (total + pageSize - 1) / pageSize

	if page > totalPages && totalPages > 0 {
		writeError(w, http.StatusBadRequest, errors.New("page number exceeds total pages"))
		return
	}
	if totalPages == 0 {
		writeJSON(w, http.StatusOK, paginatedBlocksResponse{
			Blocks: []interface{}{}, Page: page, PageSize: pageSize,
		})
		return
	}

	start := total - page*pageSize
	end := total - (page-1)*pageSize
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}

	paged := reverseBlocks(blocks[start:end])
	out := make([]interface{}, len(paged))
	for i, b := range paged {
		out[i] = b
	}

	writeJSON(w, http.StatusOK, paginatedBlocksResponse{
		Blocks:      out,
		Page:        page,
		PageSize:    pageSize,
		TotalBlocks: total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	})
}

func (s *Server) handleLatestBlocks(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	blocks := s.chain.Blocks()
	if limit > len(blocks) {
		limit = len(blocks)
	}
	writeJSON(w, http.StatusOK, reverseBlocks(blocks[len(blocks)-limit:]))
}

func (s *Server) handleHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, heightResponse{Height: s.chain.Height()})
}

func (s *Server) handleHalving(w http.ResponseWriter, r *http.Request) {
	height := s.chain.Height()
	halvings := height / s.params.HalvingInterval
	writeJSON(w, http.StatusOK, halvingResponse{
		Halvings: halvings,
		Subsidy:  int64(s.params.SubsidyAt(height)),
	})
}

func (s *Server) handleBlockByHeight(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/blockchain/height/")
	height, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid height"))
		return
	}
	blk, ok := s.chain.At(height)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("block not found"))
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	hash := types.Hash(strings.TrimPrefix(r.URL.Path, "/blockchain/hash/"))
	blk, ok := s.chain.ByHash(hash)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("block not found"))
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

func (s *Server) handleBlockTx(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/blockchain/tx/")
	t, blk, ok := s.chain.FindTx(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("transaction not found in any block"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"block": blk, "transaction": t})
}

// handleTransactions serves the full mempool contents (GET) and accepts
// new transaction submissions (POST), grounded on
// original_source/backend/routers/transaction.py's route_transactions and
// original_source/backend/routers/wallet.py's route_wallet_transact.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.pool.All())
	case http.MethodPost:
		s.handleSubmitTx(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("GET or POST required"))
	}
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var req submitTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("amount must be positive"))
		return
	}

	sender := types.Address(req.Address)
	recipient := types.Address(req.Recipient)
	utxos := s.chain.UTXOView()

	built, err := tx.AssembleSubmitted(s.params, utxos, s.pool, sender, recipient, types.MicroAmount(req.Amount), req.Priority, req.Signature, req.PublicKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := tx.Validate(s.params, built, utxos, s.pool); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.pool.Set(built); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.bcast != nil {
		s.bcast.BroadcastTransaction(built)
	}

	writeJSON(w, http.StatusOK, submitTxResponse{
		Message:     "Transaction created successfully",
		Transaction: built,
	})
}

func (s *Server) handleTransactionsByAddress(w http.ResponseWriter, r *http.Request) {
	address := types.Address(strings.TrimPrefix(r.URL.Path, "/transactions/address/"))

	var out []addressTxResponse
	for _, t := range s.pool.All() {
		if involvesAddress(t, address) {
			out = append(out, addressTxResponse{Transaction: t, Status: "pending"})
		}
	}
	for _, blk := range s.chain.Blocks() {
		for _, t := range blk.Data {
			if involvesAddress(t, address) {
				out = append(out, addressTxResponse{Transaction: t, Status: "confirmed", BlockHeight: blk.Height})
			}
		}
	}

	writeJSON(w, http.StatusOK, out)
}

func involvesAddress(t *tx.Transaction, address types.Address) bool {
	if t.Input.Address.Equal(address) {
		return true
	}
	_, ok := t.Output[address]
	return ok
}

func (s *Server) handleWalletInfo(w http.ResponseWriter, r *http.Request) {
	address := types.Address(strings.TrimPrefix(r.URL.Path, "/wallet/"))
	if address.IsZero() {
		writeError(w, http.StatusBadRequest, errors.New("address is required"))
		return
	}
	balance := s.chain.Balance(address)
	pending := s.pool.PendingSpends(address)
	writeJSON(w, http.StatusOK, balanceResponse{
		Address:        string(address),
		Balance:        int64(balance),
		PendingSpends:  int64(pending),
		AvailableSpend: int64(balance - pending),
	})
}

func (s *Server) handleFeeRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, feeRateResponse{
		FeeRate:             s.feeRate.Rate(),
		PriorityMultipliers: s.params.PriorityMultipliers,
		MempoolSize:         s.pool.Count(),
		BlockFullness:       s.feeRate.BlockFullness(),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func reverseBlocks(in []*block.Block) []*block.Block {
	out := make([]*block.Block, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
