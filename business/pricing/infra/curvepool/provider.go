// Package curvepool implements the LiquiditySource interface for a single
// stable-swap pool. The venue is optional: it stays out of the aggregation
// set unless enabled, and an enabled pool with no configured address answers
// every request with a typed configuration failure instead of guessing.
package curvepool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvega/spreadscan/business/pricing/app"
	"github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/circuitbreaker"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/logger"
)

const (
	tracerName = "curvepool"
	meterName  = "curvepool"

	// VenueName identifies this adapter in quotes and diagnostics.
	VenueName = "curvepool"

	maxCoins = 8
)

// PoolABI covers coin discovery and the exchange-rate query.
const PoolABI = `[
	{
		"inputs": [{"internalType": "uint256", "name": "arg0", "type": "uint256"}],
		"name": "coins",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"internalType": "int128", "name": "i", "type": "int128"},
			{"internalType": "int128", "name": "j", "type": "int128"},
			{"internalType": "uint256", "name": "dx", "type": "uint256"}
		],
		"name": "get_dy",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Ensure Provider implements LiquiditySource.
var _ app.LiquiditySource = (*Provider)(nil)

// providerMetrics holds OTEL metric instruments.
type providerMetrics struct {
	quotesTotal  metric.Int64Counter
	quoteErrors  metric.Int64Counter
	quoteLatency metric.Float64Histogram
}

// Provider quotes swaps against one stable-swap pool via get_dy.
type Provider struct {
	caller  app.ContractCaller
	pool    common.Address
	poolABI abi.ABI

	// Coin index discovery happens once, on first use.
	coinsOnce sync.Once
	coins     map[common.Address]int64
	coinsErr  error

	resolver *domain.Resolver
	failures *app.FailureTracker

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates the stable-pool venue adapter. A missing pool address
// is not a construction error: the adapter still participates and reports
// the misconfiguration through its quotes, where diagnostics can see it.
func NewProvider(
	caller app.ContractCaller,
	cfg config.CurvePoolConfig,
	resolver *domain.Resolver,
	failures *app.FailureTracker,
	log logger.LoggerInterface,
) (*Provider, error) {
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool ABI: %w", err)
	}

	p := &Provider{
		caller:   caller,
		poolABI:  poolABI,
		resolver: resolver,
		failures: failures,
		logger:   log,
		cb:       circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("curvepool")),
		tracer:   otel.Tracer(tracerName),
	}

	if cfg.PoolAddress != "" {
		p.pool = cfg.PoolAddressHex()
	}

	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return p, nil
}

func (p *Provider) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	p.metrics = &providerMetrics{}

	p.metrics.quotesTotal, err = meter.Int64Counter(
		"curvepool_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteErrors, err = meter.Int64Counter(
		"curvepool_quote_errors_total",
		metric.WithDescription("Quote requests that produced no output"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteLatency, err = meter.Float64Histogram(
		"curvepool_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name identifies the venue.
func (p *Provider) Name() string { return VenueName }

// Quote asks the pool for get_dy between the two tokens.
func (p *Provider) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	ctx, span := p.tracer.Start(ctx, "curvepool.quote",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	start := time.Now()
	p.metrics.quotesTotal.Add(ctx, 1)

	if p.pool == (common.Address{}) {
		p.metrics.quoteErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, string(apperror.CodeConfigMissing))
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodeConfigMissing, "pool address not configured")
	}

	if p.failures.Disabled(tokenIn, tokenOut) {
		span.AddEvent("pair_disabled")
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodePairDisabled, "pair disabled after repeated failures")
	}

	quote := p.quotePool(ctx, tokenIn, tokenOut, amountIn)
	p.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if !quote.Success {
		p.metrics.quoteErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, string(quote.FailCode))
		if p.failures.RecordFailure(tokenIn, tokenOut) {
			p.logger.Warn(ctx, "pair disabled after consecutive failures",
				"venue", VenueName,
				"token_in", p.resolver.SymbolFor(tokenIn),
				"token_out", p.resolver.SymbolFor(tokenOut),
			)
		}
		return quote
	}

	p.failures.RecordSuccess(tokenIn, tokenOut)
	span.SetAttributes(attribute.String("amount_out", quote.AmountOut.String()))
	span.SetStatus(codes.Ok, "quote received")

	return quote
}

func (p *Provider) quotePool(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	p.coinsOnce.Do(func() { p.discoverCoins(ctx) })
	if p.coinsErr != nil {
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodeContractCallFailed, fmt.Sprintf("coin discovery: %v", p.coinsErr))
	}

	i, okIn := p.coins[tokenIn]
	j, okOut := p.coins[tokenOut]
	if !okIn || !okOut {
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodePoolNotFound, "token not among pool coins")
	}

	callData, err := p.poolABI.Pack("get_dy", big.NewInt(i), big.NewInt(j), amountIn)
	if err != nil {
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodeInternalError, fmt.Sprintf("encode get_dy: %v", err))
	}

	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, p.pool, callData)
	})
	if err != nil {
		code := apperror.CodeContractCallFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = apperror.CodeQuoteTimeout
		} else if strings.Contains(err.Error(), "execution reverted") {
			code = apperror.CodeQuoteReverted
		}
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn, code, err.Error())
	}

	outputs, err := p.poolABI.Unpack("get_dy", raw)
	if err != nil {
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodeContractCallFailed, fmt.Sprintf("decode get_dy: %v", err))
	}

	return domain.NewQuote(VenueName, tokenIn, tokenOut, amountIn, outputs[0].(*big.Int),
		domain.RouteMeta{
			PathDesc: fmt.Sprintf("%s -> %s @ %s",
				p.resolver.SymbolFor(tokenIn), p.resolver.SymbolFor(tokenOut), p.pool.Hex()[:10]),
			Pool:       p.pool,
			StablePool: true,
		})
}

// discoverCoins walks coins(0..maxCoins) until the pool reverts, building the
// address-to-index map get_dy needs.
func (p *Provider) discoverCoins(ctx context.Context) {
	coins := make(map[common.Address]int64)

	for idx := int64(0); idx < maxCoins; idx++ {
		callData, err := p.poolABI.Pack("coins", big.NewInt(idx))
		if err != nil {
			p.coinsErr = err
			return
		}

		raw, err := p.caller.CallContract(ctx, p.pool, callData)
		if err != nil {
			// The first revert marks the end of the coin list.
			break
		}

		outputs, err := p.poolABI.Unpack("coins", raw)
		if err != nil {
			p.coinsErr = err
			return
		}
		coins[outputs[0].(common.Address)] = idx
	}

	if len(coins) < 2 {
		p.coinsErr = errors.New("pool exposes fewer than two coins")
		return
	}

	p.coins = coins
	p.logger.Info(ctx, "curve pool coins discovered", "pool", p.pool.Hex(), "count", len(coins))
}
