package rpc

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/klingnet-chain/klingnet-core/config"
	"github.com/klingnet-chain/klingnet-core/internal/chain"
	"github.com/klingnet-chain/klingnet-core/internal/feerate"
	"github.com/klingnet-chain/klingnet-core/internal/mempool"
	"github.com/klingnet-chain/klingnet-core/internal/storage"
	"github.com/klingnet-chain/klingnet-core/pkg/types"
)

var testAddr = types.Address("0x0000000000000000000000000000000000dEaD")

func newTestServer(t *testing.T) *Server {
	t.Helper()
	params := config.DefaultParams()
	c, err := chain.New(params, storage.NewMemory())
	if err != nil {
		t.Fatalf("chain.New: %v", err)
	}
	pool := mempool.New(params, c.UTXOView(), 0)
	fee := feerate.New(params, c, pool)
	return New(":0", params, c, pool, fee)
}

func TestServer_HandleHeightReturnsGenesisHeight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/blockchain/height", nil)
	rec := httptest.NewRecorder()
	s.handleHeight(rec, req)

	var resp heightResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Height != 0 {
		t.Errorf("Height = %d, want 0 (genesis only)", resp.Height)
	}
}

func TestServer_HandleMineAppendsBlockAndPaysMiner(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(mineRequest{MinerAddress: string(testAddr)})
	req := httptest.NewRequest("POST", "/mine", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleMine(rec, req)

	if rec.Code != 200 {
		t.Fatalf("handleMine status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp mineResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reward <= 0 {
		t.Errorf("Reward = %d, want positive", resp.Reward)
	}
	if s.chain.Height() != 1 {
		t.Errorf("chain height after mine = %d, want 1", s.chain.Height())
	}
	if bal := s.chain.Balance(testAddr); bal != types.MicroAmount(resp.Reward) {
		t.Errorf("miner balance = %s, want reward %d", bal, resp.Reward)
	}
}

func TestServer_HandleMineRejectsMissingAddress(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(mineRequest{})
	req := httptest.NewRequest("POST", "/mine", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleMine(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_HandleWalletInfoReportsZeroBalanceForUnknownAddress(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/wallet/"+string(testAddr), nil)
	rec := httptest.NewRecorder()
	s.handleWalletInfo(rec, req)

	var resp balanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Balance != 0 || resp.PendingSpends != 0 {
		t.Errorf("fresh address should have zero balance and pending spends, got %+v", resp)
	}
}

func TestServer_HandleFeeRateReturnsDefaultUnderNoLoad(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/fee-rate", nil)
	rec := httptest.NewRecorder()
	s.handleFeeRate(rec, req)

	var resp feeRateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FeeRate != s.params.DefaultFeeRate {
		t.Errorf("FeeRate = %v, want default %v", resp.FeeRate, s.params.DefaultFeeRate)
	}
	if resp.MempoolSize != 0 {
		t.Errorf("MempoolSize = %d, want 0", resp.MempoolSize)
	}
}

func TestServer_HandleBlockByHeightAndHashFindGenesis(t *testing.T) {
	s := newTestServer(t)
	genesis := s.chain.Tip()

	req := httptest.NewRequest("GET", "/blockchain/height/0", nil)
	rec := httptest.NewRecorder()
	s.handleBlockByHeight(rec, req)
	if rec.Code != 200 {
		t.Fatalf("handleBlockByHeight status = %d", rec.Code)
	}

	req2 := httptest.NewRequest("GET", "/blockchain/hash/"+string(genesis.Hash), nil)
	rec2 := httptest.NewRecorder()
	s.handleBlockByHash(rec2, req2)
	if rec2.Code != 200 {
		t.Fatalf("handleBlockByHash status = %d", rec2.Code)
	}
}

func TestServer_HandleBlockByHeightNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/blockchain/height/99", nil)
	rec := httptest.NewRecorder()
	s.handleBlockByHeight(rec, req)
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
