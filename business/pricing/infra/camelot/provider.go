// Package camelot implements the LiquiditySource interface for a
// constant-product AMM quoted directly against its pair contracts.
package camelot

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
	"github.com/dvega/spreadscan/internal/cache"
	"github.com/dvega/spreadscan/internal/circuitbreaker"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/logger"
	"github.com/dvega/spreadscan/internal/ratelimit"
)

const (
	tracerName = "camelot"
	meterName  = "camelot"

	// VenueName identifies this adapter in quotes and diagnostics.
	VenueName = "camelot"

	pairCacheTTL = 10 * time.Minute
)

// Ensure Provider implements LiquiditySource.
var _ app.LiquiditySource = (*Provider)(nil)

// providerMetrics holds OTEL metric instruments.
type providerMetrics struct {
	quotesTotal      metric.Int64Counter
	quoteErrors      metric.Int64Counter
	quoteLatency     metric.Float64Histogram
	reserveFallbacks metric.Int64Counter
}

// Provider quotes swaps against pair contracts discovered through the
// factory. The on-chain getAmountOut is tried first; when a pair predates
// that entry point the adapter falls back to an off-chain x*y=k computation
// over getReserves. Stable-swap pairs never take the fallback, their curve
// is not constant-product.
type Provider struct {
	caller     app.ContractCaller
	factory    common.Address
	factoryABI abi.ABI
	pairABI    abi.ABI

	pairCache *cache.Cache[string, common.Address]

	resolver *domain.Resolver
	policy   domain.ResolutionPolicy
	failures *app.FailureTracker
	limiter  *ratelimit.Limiter

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates the constant-product venue adapter.
func NewProvider(
	caller app.ContractCaller,
	cfg config.CamelotConfig,
	resolver *domain.Resolver,
	failures *app.FailureTracker,
	limiter *ratelimit.Limiter,
	log logger.LoggerInterface,
) (*Provider, error) {
	factoryABI, err := abi.JSON(strings.NewReader(FactoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory ABI: %w", err)
	}
	pairABI, err := abi.JSON(strings.NewReader(PairABI))
	if err != nil {
		return nil, fmt.Errorf("parse pair ABI: %w", err)
	}

	policy, err := domain.ParsePolicy(cfg.ResolutionPolicy)
	if err != nil {
		return nil, fmt.Errorf("camelot resolution policy: %w", err)
	}

	p := &Provider{
		caller:     caller,
		factory:    cfg.FactoryAddressHex(),
		factoryABI: factoryABI,
		pairABI:    pairABI,
		pairCache:  cache.New[string, common.Address](pairCacheTTL),
		resolver:   resolver,
		policy:     policy,
		failures:   failures,
		limiter:    limiter,
		logger:     log,
		cb:         circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("camelot-pair")),
		tracer:     otel.Tracer(tracerName),
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
		"camelot_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteErrors, err = meter.Int64Counter(
		"camelot_quote_errors_total",
		metric.WithDescription("Quote requests that produced no output"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteLatency, err = meter.Float64Histogram(
		"camelot_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.metrics.reserveFallbacks, err = meter.Int64Counter(
		"camelot_reserve_fallbacks_total",
		metric.WithDescription("Quotes served from the off-chain reserve computation"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name identifies the venue.
func (p *Provider) Name() string { return VenueName }

// Quote asks the venue's pair for the output of swapping amountIn.
func (p *Provider) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	ctx, span := p.tracer.Start(ctx, "camelot.quote",
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
	span.SetAttributes(attribute.String("amount_out", quote.AmountOut.String()))
	span.SetStatus(codes.Ok, "quote received")

	return quote
}

func (p *Provider) quoteResolved(ctx context.Context, pair domain.ResolvedPair, amountIn *big.Int) domain.Quote {
	pairAddr, err := p.findPair(ctx, pair.TokenIn, pair.TokenOut)
	if err != nil {
		return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn,
			classifyErr(err), err.Error())
	}
	if pairAddr == (common.Address{}) {
		return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn,
			apperror.CodePoolNotFound, "factory has no pair for tokens")
	}

	meta := domain.RouteMeta{
		PathDesc: fmt.Sprintf("%s -> %s @ %s",
			p.resolver.SymbolFor(pair.TokenIn), p.resolver.SymbolFor(pair.TokenOut),
			pairAddr.Hex()[:10]),
		Pool:          pairAddr,
		InProvenance:  pair.InProvenance,
		OutProvenance: pair.OutProvenance,
	}

	// Probe 1: the pair's own getAmountOut. Individual probe failures are
	// swallowed; only the final verdict surfaces.
	amountOut, probeErr := p.pairAmountOut(ctx, pairAddr, pair.TokenIn, amountIn)
	if probeErr == nil {
		return domain.NewQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn, amountOut, meta)
	}

	// Probe 2: off-chain constant-product over the reserve snapshot.
	amountOut, fallbackErr := p.reservesAmountOut(ctx, pairAddr, pair.TokenIn, amountIn, &meta)
	if fallbackErr == nil {
		p.metrics.reserveFallbacks.Add(ctx, 1)
		p.logger.Debug(ctx, "quote served from reserve fallback",
			"pair", pairAddr.Hex(), "amount_out", amountOut.String())
		return domain.NewQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn, amountOut, meta)
	}

	return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn,
		classifyErr(probeErr), fmt.Sprintf("getAmountOut: %v; reserves: %v", probeErr, fallbackErr))
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

// findPair discovers the pair contract for two tokens, cached per ordered
// pair for the factory's benefit.
func (p *Provider) findPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	key := strings.ToLower(tokenA.Hex() + ":" + tokenB.Hex())
	if addr, ok := p.pairCache.Get(key); ok {
		return addr, nil
	}

	callData, err := p.factoryABI.Pack("getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, fmt.Errorf("encode getPair: %w", err)
	}

	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, p.factory, callData)
	})
	if err != nil {
		return common.Address{}, err
	}

	outputs, err := p.factoryABI.Unpack("getPair", raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode getPair: %w", err)
	}
	addr := outputs[0].(common.Address)

	// The zero address means "no pair"; caching it too keeps a missing pool
	// from hammering the factory every tick.
	p.pairCache.Set(key, addr)
	return addr, nil
}

// pairAmountOut runs the on-chain getAmountOut probe.
func (p *Provider) pairAmountOut(ctx context.Context, pairAddr, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	callData, err := p.pairABI.Pack("getAmountOut", amountIn, tokenIn)
	if err != nil {
		return nil, fmt.Errorf("encode getAmountOut: %w", err)
	}

	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, pairAddr, callData)
	})
	if err != nil {
		return nil, err
	}

	outputs, err := p.pairABI.Unpack("getAmountOut", raw)
	if err != nil {
		return nil, fmt.Errorf("decode getAmountOut: %w", err)
	}
	return outputs[0].(*big.Int), nil
}

// reservesAmountOut computes the output off-chain from a reserve snapshot.
// Stable-swap pairs are rejected: their pricing curve is not x*y=k and a
// constant-product estimate would be silently wrong.
func (p *Provider) reservesAmountOut(ctx context.Context, pairAddr, tokenIn common.Address, amountIn *big.Int, meta *domain.RouteMeta) (*big.Int, error) {
	stable, err := p.callBool(ctx, pairAddr, "stableSwap")
	if err == nil && stable {
		meta.StablePool = true
		return nil, errors.New("stable-swap pair, constant-product fallback not applicable")
	}

	token0, err := p.callAddress(ctx, pairAddr, "token0")
	if err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}

	callData, err := p.pairABI.Pack("getReserves")
	if err != nil {
		return nil, fmt.Errorf("encode getReserves: %w", err)
	}
	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, pairAddr, callData)
	})
	if err != nil {
		return nil, err
	}
	outputs, err := p.pairABI.Unpack("getReserves", raw)
	if err != nil {
		return nil, fmt.Errorf("decode getReserves: %w", err)
	}

	reserve0 := outputs[0].(*big.Int)
	reserve1 := outputs[1].(*big.Int)
	fee0 := outputs[2].(uint16)
	fee1 := outputs[3].(uint16)

	var reserveIn, reserveOut *big.Int
	var feeIn uint16
	if tokenIn == token0 {
		reserveIn, reserveOut, feeIn = reserve0, reserve1, fee0
	} else {
		reserveIn, reserveOut, feeIn = reserve1, reserve0, fee1
	}

	out := constantProductOut(amountIn, reserveIn, reserveOut, feeIn)
	if out.Sign() <= 0 {
		return nil, errors.New("reserve computation produced zero output")
	}
	return out, nil
}

func (p *Provider) callBool(ctx context.Context, to common.Address, method string) (bool, error) {
	callData, err := p.pairABI.Pack(method)
	if err != nil {
		return false, err
	}
	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, to, callData)
	})
	if err != nil {
		return false, err
	}
	outputs, err := p.pairABI.Unpack(method, raw)
	if err != nil {
		return false, err
	}
	return outputs[0].(bool), nil
}

func (p *Provider) callAddress(ctx context.Context, to common.Address, method string) (common.Address, error) {
	callData, err := p.pairABI.Pack(method)
	if err != nil {
		return common.Address{}, err
	}
	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, to, callData)
	})
	if err != nil {
		return common.Address{}, err
	}
	outputs, err := p.pairABI.Unpack(method, raw)
	if err != nil {
		return common.Address{}, err
	}
	return outputs[0].(common.Address), nil
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
