package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/logger"
)

// Aggregator fans one quote request out to every enabled liquidity source
// and selects the best successful result.
type Aggregator struct {
	sources []LiquiditySource
	logger  logger.LoggerInterface
}

// NewAggregator creates an Aggregator over the given sources. Declaration
// order is significant: FetchAll preserves it and FetchBest uses it as the
// deterministic tie-break.
func NewAggregator(sources []LiquiditySource, log logger.LoggerInterface) *Aggregator {
	return &Aggregator{sources: sources, logger: log}
}

// Sources returns the venue names in declaration order.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// FetchAll queries every source concurrently and returns one Quote per
// source in declaration order. Adapters already trap their own failures;
// the recover here is a second line of defense so a panicking adapter
// still cannot take the fan-out down.
func (a *Aggregator) FetchAll(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) []domain.Quote {
	quotes := make([]domain.Quote, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			quotes[i] = a.safeQuote(ctx, src, tokenIn, tokenOut, amountIn)
			return nil
		})
	}
	_ = g.Wait()

	return quotes
}

// FetchBest returns the successful quote with the strictly greatest output,
// or nil when every source failed. Ties keep the earlier-declared source.
func (a *Aggregator) FetchBest(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) *domain.Quote {
	quotes := a.FetchAll(ctx, tokenIn, tokenOut, amountIn)

	var best *domain.Quote
	for i := range quotes {
		if !quotes[i].Success {
			continue
		}
		if best == nil || quotes[i].AmountOut.Cmp(best.AmountOut) > 0 {
			best = &quotes[i]
		}
	}
	return best
}

func (a *Aggregator) safeQuote(ctx context.Context, src LiquiditySource, tokenIn, tokenOut common.Address, amountIn *big.Int) (q domain.Quote) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error(ctx, "liquidity source panicked",
				"source", src.Name(),
				"panic", fmt.Sprint(r),
			)
			q = domain.FailedQuote(src.Name(), tokenIn, tokenOut, amountIn,
				apperror.CodeInternalError, fmt.Sprintf("adapter panic: %v", r))
		}
	}()
	return src.Quote(ctx, tokenIn, tokenOut, amountIn)
}
