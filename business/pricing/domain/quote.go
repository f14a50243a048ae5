// Package domain contains the core domain types for the pricing context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/dvega/spreadscan/internal/apperror"
)

// Provenance tags which token variant a quote side actually used.
type Provenance string

const (
	ProvenanceAsGiven   Provenance = "as-given"
	ProvenancePrimary   Provenance = "primary-variant"
	ProvenanceSecondary Provenance = "secondary-variant"
)

// RouteMeta describes how a venue produced a quote: which path, fee tiers and
// pool were used and which token variants were substituted. Diagnostic only;
// selection never reads it.
type RouteMeta struct {
	PathDesc      string
	FeeTiers      []int64
	Pool          common.Address
	StablePool    bool
	InProvenance  Provenance
	OutProvenance Provenance
}

// Quote is the result of asking one liquidity source for an exchange rate.
// Immutable; constructed fresh per request and consumed immediately.
type Quote struct {
	Source    string
	TokenIn   common.Address
	TokenOut  common.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Success   bool
	FailCode  apperror.Code
	Reason    string
	Route     RouteMeta
	Timestamp time.Time
}

// NewQuote builds a successful quote. A zero or nil output amount is demoted
// to a failure: a rate that rounds to zero would corrupt spread math if it
// ever flowed through as a success.
func NewQuote(source string, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int, route RouteMeta) Quote {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return FailedQuote(source, tokenIn, tokenOut, amountIn, apperror.CodeZeroOutput, "quote produced zero output")
	}
	return Quote{
		Source:    source,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: new(big.Int).Set(amountOut),
		Success:   true,
		Route:     route,
		Timestamp: time.Now(),
	}
}

// FailedQuote builds a typed failure. Adapters return these instead of errors;
// a misbehaving venue must never abort a fan-out across the others.
func FailedQuote(source string, tokenIn, tokenOut common.Address, amountIn *big.Int, code apperror.Code, reason string) Quote {
	in := new(big.Int)
	if amountIn != nil {
		in.Set(amountIn)
	}
	return Quote{
		Source:    source,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		AmountIn:  in,
		AmountOut: new(big.Int),
		Success:   false,
		FailCode:  code,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// BetterThan reports whether q has strictly greater output than other.
// Only meaningful between successful quotes for the same request.
func (q Quote) BetterThan(other Quote) bool {
	if !q.Success {
		return false
	}
	if !other.Success {
		return true
	}
	return q.AmountOut.Cmp(other.AmountOut) > 0
}
