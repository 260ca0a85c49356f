package tx

import "errors"

// ErrInvalidTransaction is wrapped by every rule failure Validate and
// ValidateCoinbase report, so callers can classify a failure with
// errors.Is(err, tx.ErrInvalidTransaction) without string matching.
var ErrInvalidTransaction = errors.New("invalid transaction")

// ErrInsufficientFunds is returned by BuildSpend when the sender's
// confirmed balance minus pending mempool spends is less than the
// requested amount plus fee.
var ErrInsufficientFunds = errors.New("insufficient funds")
