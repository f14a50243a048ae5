// Package app contains application services and port definitions for the pricing context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvega/spreadscan/business/pricing/domain"
)

// LiquiditySource is the uniform quoting capability every venue adapter
// implements. Quote never returns an error: transport failures, missing
// pools and misconfiguration all come back as typed failed Quotes so one
// broken venue cannot abort a fan-out across the rest.
type LiquiditySource interface {
	// Name identifies the venue in quotes and diagnostics.
	Name() string

	// Quote asks the venue for the output amount of swapping amountIn of
	// tokenIn into tokenOut.
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote
}

// ContractCaller is the narrow read-only on-chain access adapters depend on.
// Implementations issue eth_call with a per-call timeout and surface failures
// as ordinary errors.
type ContractCaller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}
