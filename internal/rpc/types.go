package rpc

import "github.com/klingnet-chain/klingnet-core/pkg/tx"

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// mineRequest is the body of POST /mine.
type mineRequest struct {
	MinerAddress string `json:"miner_address"`
}

// mineResponse mirrors
// original_source/backend/routers/blockchain.py's route_mine response
// shape (message/block/reward/confirmed_balance).
type mineResponse struct {
	Message          string      `json:"message"`
	Block            interface{} `json:"block"`
	Reward           int64       `json:"reward"`
	ConfirmedBalance int64       `json:"confirmed_balance"`
}

// paginatedBlocksResponse mirrors route blockchain/paginated.
type paginatedBlocksResponse struct {
	Blocks      []interface{} `json:"blocks"`
	Page        int           `json:"page"`
	PageSize    int           `json:"page_size"`
	TotalBlocks int           `json:"total_blocks"`
	TotalPages  int           `json:"total_pages"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

// heightResponse is the body of GET /blockchain/height.
type heightResponse struct {
	Height uint64 `json:"height"`
}

// halvingResponse is the body of GET /blockchain/halving.
type halvingResponse struct {
	Halvings uint64 `json:"halvings"`
	Subsidy  int64  `json:"subsidy"`
}

// txLookupResponse pairs a transaction with its confirmation status. No
// registered route returns it: GET /blockchain/tx/{id} looks up confirmed
// transactions only, and pending transactions cannot be looked up by id.
type txLookupResponse struct {
	Transaction *tx.Transaction `json:"transaction"`
	Status      string          `json:"status"`
	BlockHeight uint64          `json:"block_height,omitempty"`
}

// addressTxResponse annotates a transaction with its confirmation status
// for GET /transactions/address/{address}.
type addressTxResponse struct {
	*tx.Transaction
	Status      string `json:"status"`
	BlockHeight uint64 `json:"block_height,omitempty"`
}

// balanceResponse is the body of GET /wallet/{address}.
type balanceResponse struct {
	Address        string `json:"address"`
	Balance        int64  `json:"balance"`
	PendingSpends  int64  `json:"pending_spends"`
	AvailableSpend int64  `json:"available_balance"`
}

// submitTxRequest is the body of POST /transactions.
//
// Grounded on
// original_source/backend/routers/wallet.py's TransactRequest.
type submitTxRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Priority  string `json:"priority"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// submitTxResponse is the body of a successful POST /transactions.
type submitTxResponse struct {
	Message     string          `json:"message"`
	Transaction *tx.Transaction `json:"transaction"`
}

// feeRateResponse is the body of GET /fee-rate.
type feeRateResponse struct {
	FeeRate             float64            `json:"fee_rate"`
	PriorityMultipliers map[string]float64 `json:"priority_multipliers"`
	MempoolSize         int                `json:"mempool_size"`
	BlockFullness       float64            `json:"block_fullness"`
}
