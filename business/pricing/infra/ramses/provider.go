// Package ramses implements the LiquiditySource interface for a
// solidly-style AMM whose router quotes both the stable and the volatile
// pool of a pair and reports which one priced the trade.
package ramses

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
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
	"github.com/dvega/spreadscan/internal/ratelimit"
)

const (
	tracerName = "ramses"
	meterName  = "ramses"

	// VenueName identifies this adapter in quotes and diagnostics.
	VenueName = "ramses"
)

// RouterABI covers the router's combined stable/volatile quote entry point.
const RouterABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "address", "name": "tokenIn", "type": "address"},
			{"internalType": "address", "name": "tokenOut", "type": "address"}
		],
		"name": "getAmountOut",
		"outputs": [
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "bool", "name": "stable", "type": "bool"}
		],
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
	stableQuotes metric.Int64Counter
}

// Provider quotes swaps through the solidly router.
type Provider struct {
	caller    app.ContractCaller
	router    common.Address
	routerABI abi.ABI

	resolver *domain.Resolver
	policy   domain.ResolutionPolicy
	failures *app.FailureTracker
	limiter  *ratelimit.Limiter

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates the solidly-style venue adapter.
func NewProvider(
	caller app.ContractCaller,
	cfg config.RamsesConfig,
	resolver *domain.Resolver,
	failures *app.FailureTracker,
	limiter *ratelimit.Limiter,
	log logger.LoggerInterface,
) (*Provider, error) {
	routerABI, err := abi.JSON(strings.NewReader(RouterABI))
	if err != nil {
		return nil, fmt.Errorf("parse router ABI: %w", err)
	}

	policy, err := domain.ParsePolicy(cfg.ResolutionPolicy)
	if err != nil {
		return nil, fmt.Errorf("ramses resolution policy: %w", err)
	}

	p := &Provider{
		caller:    caller,
		router:    cfg.RouterAddressHex(),
		routerABI: routerABI,
		resolver:  resolver,
		policy:    policy,
		failures:  failures,
		limiter:   limiter,
		logger:    log,
		cb:        circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("ramses-router")),
		tracer:    otel.Tracer(tracerName),
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
		"ramses_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteErrors, err = meter.Int64Counter(
		"ramses_quote_errors_total",
		metric.WithDescription("Quote requests that produced no output"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteLatency, err = meter.Float64Histogram(
		"ramses_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.metrics.stableQuotes, err = meter.Int64Counter(
		"ramses_stable_quotes_total",
		metric.WithDescription("Quotes priced by the stable pool"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name identifies the venue.
func (p *Provider) Name() string { return VenueName }

// Quote asks the router for the better of the pair's stable and volatile
// pools.
func (p *Provider) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	ctx, span := p.tracer.Start(ctx, "ramses.quote",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Hex()),
			attribute.String("token_out", tokenOut.Hex()),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	start := time.Now()
	p.metrics.quotesTotal.Add(ctx, 1)

	if p.failures.Disabled(tokenIn, tokenOut) {
		span.AddEvent("pair_disabled")
		return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
			apperror.CodePairDisabled, "pair disabled after repeated failures")
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return domain.FailedQuote(VenueName, tokenIn, tokenOut, amountIn,
				apperror.CodeQuoteTimeout, "rate limiter wait aborted")
		}
	}

	resolved := p.resolver.Resolve(tokenIn, tokenOut, p.policy)
	quote := p.quoteResolved(ctx, resolved, amountIn)

	if !quote.Success && p.policy == domain.PolicyAutomatic {
		quote = p.retryWithSiblings(ctx, resolved, amountIn, quote)
	}

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
	if quote.Route.StablePool {
		p.metrics.stableQuotes.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.String("amount_out", quote.AmountOut.String()),
		attribute.Bool("stable_pool", quote.Route.StablePool),
	)
	span.SetStatus(codes.Ok, "quote received")

	return quote
}

func (p *Provider) quoteResolved(ctx context.Context, pair domain.ResolvedPair, amountIn *big.Int) domain.Quote {
	callData, err := p.routerABI.Pack("getAmountOut", amountIn, pair.TokenIn, pair.TokenOut)
	if err != nil {
		return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn,
			apperror.CodeInternalError, fmt.Sprintf("encode getAmountOut: %v", err))
	}

	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, p.router, callData)
	})
	if err != nil {
		return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn,
			classifyErr(err), err.Error())
	}

	outputs, err := p.routerABI.Unpack("getAmountOut", raw)
	if err != nil {
		return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn,
			apperror.CodeContractCallFailed, fmt.Sprintf("decode getAmountOut: %v", err))
	}

	amountOut := outputs[0].(*big.Int)
	stable := outputs[1].(bool)

	poolKind := "volatile"
	if stable {
		poolKind = "stable"
	}

	return domain.NewQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn, amountOut,
		domain.RouteMeta{
			PathDesc: fmt.Sprintf("%s -> %s (%s)",
				p.resolver.SymbolFor(pair.TokenIn), p.resolver.SymbolFor(pair.TokenOut), poolKind),
			StablePool:    stable,
			InProvenance:  pair.InProvenance,
			OutProvenance: pair.OutProvenance,
		})
}

func (p *Provider) retryWithSiblings(ctx context.Context, pair domain.ResolvedPair, amountIn *big.Int, original domain.Quote) domain.Quote {
	sibIn, hasIn := p.resolver.Sibling(pair.TokenIn)
	sibOut, hasOut := p.resolver.Sibling(pair.TokenOut)

	var combos []domain.ResolvedPair
	if hasIn {
		combos = append(combos, domain.ResolvedPair{
			TokenIn: sibIn, TokenOut: pair.TokenOut,
			InProvenance:  p.resolver.ProvenanceFor(sibIn),
			OutProvenance: pair.OutProvenance,
		})
	}
	if hasOut {
		combos = append(combos, domain.ResolvedPair{
			TokenIn: pair.TokenIn, TokenOut: sibOut,
			InProvenance:  pair.InProvenance,
			OutProvenance: p.resolver.ProvenanceFor(sibOut),
		})
	}
	if hasIn && hasOut {
		combos = append(combos, domain.ResolvedPair{
			TokenIn: sibIn, TokenOut: sibOut,
			InProvenance:  p.resolver.ProvenanceFor(sibIn),
			OutProvenance: p.resolver.ProvenanceFor(sibOut),
		})
	}

	for _, c := range combos {
		if quote := p.quoteResolved(ctx, c, amountIn); quote.Success {
			return quote
		}
	}
	return original
}

// classifyErr maps transport errors to quote failure codes.
func classifyErr(err error) apperror.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperror.CodeQuoteTimeout
	case strings.Contains(err.Error(), "execution reverted"):
		return apperror.CodeQuoteReverted
	default:
		return apperror.CodeContractCallFailed
	}
}
