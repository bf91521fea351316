// Package receipt queries source-chain RPC endpoints for burn transaction
// finalization status.
package receipt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// Status is the outcome of a receipt lookup.
type Status string

const (
	// StatusSuccess means the transaction is mined and succeeded.
	StatusSuccess Status = "success"
	// StatusReverted means the transaction is mined and reverted on-chain.
	StatusReverted Status = "reverted"
	// StatusPending means no receipt is available yet, or the lookup failed.
	// Lookup failures deliberately collapse into pending: staying pending is
	// safe, wrongly marking a burn reverted is not.
	StatusPending Status = "pending"
)

// Checker performs eth_getTransactionReceipt lookups against per-chain RPC
// endpoints.
type Checker struct {
	logger      *zap.Logger
	dialTimeout time.Duration
}

// NewChecker creates a receipt checker.
func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{
		logger:      logger,
		dialTimeout: 10 * time.Second,
	}
}

// rpcReceipt is the subset of the receipt object the checker inspects.
type rpcReceipt struct {
	Status string `json:"status"`
}

// Check returns the finalization status of txHash on the chain behind rpcURL.
func (c *Checker) Check(ctx context.Context, rpcURL, txHash string) Status {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	client, err := rpc.DialContext(dialCtx, rpcURL)
	if err != nil {
		c.logger.Debug("Receipt check dial failed",
			zap.String("rpc_url", rpcURL),
			zap.Error(err))
		return StatusPending
	}
	defer client.Close()

	var raw json.RawMessage
	if err := client.CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
		c.logger.Debug("Receipt check call failed",
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return StatusPending
	}

	// A null result means the transaction is not mined yet.
	if len(raw) == 0 || string(raw) == "null" {
		return StatusPending
	}

	var receipt rpcReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		c.logger.Debug("Receipt check decode failed",
			zap.String("tx_hash", txHash),
			zap.Error(err))
		return StatusPending
	}

	if receipt.Status == "0x1" {
		return StatusSuccess
	}
	return StatusReverted
}
