// Package app implements round-trip opportunity evaluation: it combines a
// forward and a return quote with USD valuation and gas estimation into one
// fully classified Opportunity.
package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvega/spreadscan/business/arbitrage/domain"
	blockchainapp "github.com/dvega/spreadscan/business/blockchain/app"
	pricingdomain "github.com/dvega/spreadscan/business/pricing/domain"
	valuationapp "github.com/dvega/spreadscan/business/valuation/app"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/logger"
	"github.com/dvega/spreadscan/internal/numeric"
)

const (
	tracerName = "arbitrage"
	meterName  = "arbitrage"
)

// BestQuoter is the slice of the aggregator the builder needs.
type BestQuoter interface {
	FetchBest(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) *pricingdomain.Quote
}

// Pair names a round trip by canonical symbols: base -> quote -> base.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair converts "WETH/USDC" into a Pair.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("malformed pair %q, want BASE/QUOTE", s)
	}
	return Pair{Base: strings.ToUpper(parts[0]), Quote: strings.ToUpper(parts[1])}, nil
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// BuilderConfig holds evaluation thresholds and gas-unit estimates.
type BuilderConfig struct {
	MaxSlippageBps int64
	MinProfitUSD   decimal.Decimal
	Gas            config.GasConfig
	// FallbackSymbol names the asset whose default trade size is borrowed
	// when a pair's base asset has none configured.
	FallbackSymbol string
}

// builderMetrics holds OTEL metric instruments.
type builderMetrics struct {
	built      metric.Int64Counter
	recognized metric.Int64Counter
	executable metric.Int64Counter
	scans      metric.Int64Counter
}

// Builder evaluates round trips.
type Builder struct {
	quoter    BestQuoter
	valuation *valuationapp.Service
	fees      blockchainapp.FeeSource
	registry  *asset.Registry

	// defaultSizes maps canonical symbols to raw default trade sizes.
	defaultSizes map[string]*big.Int

	cfg BuilderConfig

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *builderMetrics
}

// NewBuilder creates a Builder.
func NewBuilder(
	quoter BestQuoter,
	valuation *valuationapp.Service,
	fees blockchainapp.FeeSource,
	registry *asset.Registry,
	defaultSizes map[string]*big.Int,
	cfg BuilderConfig,
	log logger.LoggerInterface,
) (*Builder, error) {
	if cfg.FallbackSymbol == "" {
		cfg.FallbackSymbol = "WETH"
	}

	b := &Builder{
		quoter:       quoter,
		valuation:    valuation,
		fees:         fees,
		registry:     registry,
		defaultSizes: defaultSizes,
		cfg:          cfg,
		logger:       log,
		tracer:       otel.Tracer(tracerName),
	}

	if err := b.initMetrics(); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *Builder) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	b.metrics = &builderMetrics{}

	b.metrics.built, err = meter.Int64Counter(
		"opportunities_built_total",
		metric.WithDescription("Round trips evaluated"),
	)
	if err != nil {
		return err
	}

	b.metrics.recognized, err = meter.Int64Counter(
		"opportunities_recognized_total",
		metric.WithDescription("Round trips with positive gross spread"),
	)
	if err != nil {
		return err
	}

	b.metrics.executable, err = meter.Int64Counter(
		"opportunities_executable_total",
		metric.WithDescription("Round trips passing every executability gate"),
	)
	if err != nil {
		return err
	}

	b.metrics.scans, err = meter.Int64Counter(
		"scans_total",
		metric.WithDescription("Full pair scans"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Build combines a forward and a return quote into one evaluated
// Opportunity. Either quote having failed yields an unrecognized
// opportunity rather than an error; the caller decides whether to keep it.
func (b *Builder) Build(ctx context.Context, base, quote *asset.Token, amountIn *big.Int, forward, ret pricingdomain.Quote) domain.Opportunity {
	ctx, span := b.tracer.Start(ctx, "arbitrage.build",
		trace.WithAttributes(
			attribute.String("base", base.Symbol()),
			attribute.String("quote", quote.Symbol()),
		),
	)
	defer span.End()

	b.metrics.built.Add(ctx, 1)

	opp := domain.Opportunity{
		BaseSymbol:   base.Symbol(),
		QuoteSymbol:  quote.Symbol(),
		BaseAddress:  base.Primary(),
		QuoteAddress: quote.Primary(),
		AmountIn:     new(big.Int).Set(amountIn),
		Forward:      forward,
		Return:       ret,
		ValueInUSD:   decimal.Zero,
		ValueOutUSD:  decimal.Zero,
		NetProfitUSD: decimal.Zero,
		Timestamp:    time.Now(),
	}

	if !forward.Success || !ret.Success {
		span.SetStatus(codes.Error, "leg quote failed")
		return opp
	}

	opp.GrossSpreadBps = numeric.SpreadBps(amountIn, ret.AmountOut).Int64()

	slipOut := numeric.ReduceByBasisPoints(ret.AmountOut, b.cfg.MaxSlippageBps)
	opp.SlipSpreadBps = numeric.SpreadBps(amountIn, slipOut).Int64()

	opp.ValueInUSD = b.valuation.ValueUSD(ctx, forward.TokenIn, amountIn)
	opp.ValueOutUSD = b.valuation.ValueUSD(ctx, ret.TokenOut, ret.AmountOut)

	opp.GasCost = b.estimateGas(ctx, forward.Source, ret.Source)

	// Gross profit and net profit are "keep" numbers, floored at zero.
	grossProfit := opp.ValueOutUSD.Sub(opp.ValueInUSD)
	if grossProfit.IsNegative() {
		grossProfit = decimal.Zero
	}
	net := grossProfit
	if opp.GasCost != nil {
		net = net.Sub(opp.GasCost.USD)
	}
	if net.IsNegative() {
		net = decimal.Zero
	}
	opp.NetProfitUSD = net

	opp.Recognized = opp.GrossSpreadBps > 0

	// A zero USD leg means "value unknown", not "worth nothing"; an
	// opportunity whose profit figure rests on an unknown value is never
	// safe to act on.
	usdTrusted := !opp.ValueInUSD.IsZero() && !opp.ValueOutUSD.IsZero()

	opp.Executable = opp.Recognized &&
		opp.SlipSpreadBps > 0 &&
		opp.NetProfitUSD.GreaterThanOrEqual(b.cfg.MinProfitUSD) &&
		usdTrusted

	if opp.Recognized {
		b.metrics.recognized.Add(ctx, 1)
	}
	if opp.Executable {
		b.metrics.executable.Add(ctx, 1)
	}

	span.SetAttributes(
		attribute.Int64("gross_spread_bps", opp.GrossSpreadBps),
		attribute.Int64("slip_spread_bps", opp.SlipSpreadBps),
		attribute.Bool("recognized", opp.Recognized),
		attribute.Bool("executable", opp.Executable),
	)
	span.SetStatus(codes.Ok, "built")

	return opp
}

// Scan evaluates every configured pair once. Opportunities whose gross
// spread falls below minSpreadBps are dropped; the threshold may be negative
// to keep lossy pairs visible. Results are returned in pair order, unsorted.
func (b *Builder) Scan(ctx context.Context, pairs []Pair, sizes map[string]*big.Int, minSpreadBps int64) []domain.Opportunity {
	ctx, span := b.tracer.Start(ctx, "arbitrage.scan",
		trace.WithAttributes(attribute.Int("pairs", len(pairs))),
	)
	defer span.End()

	b.metrics.scans.Add(ctx, 1)

	var out []domain.Opportunity
	for _, pair := range pairs {
		base, ok := b.registry.BySymbol(pair.Base)
		if !ok {
			b.logger.Warn(ctx, "skipping pair with unknown base asset", "pair", pair.String())
			continue
		}
		quote, ok := b.registry.BySymbol(pair.Quote)
		if !ok {
			b.logger.Warn(ctx, "skipping pair with unknown quote asset", "pair", pair.String())
			continue
		}

		size := b.tradeSize(ctx, pair.Base, sizes)
		if size == nil {
			b.logger.Warn(ctx, "skipping pair with no usable trade size", "pair", pair.String())
			continue
		}

		forward := b.quoter.FetchBest(ctx, base.Primary(), quote.Primary(), size)
		if forward == nil {
			b.logger.Debug(ctx, "no forward quote", "pair", pair.String())
			continue
		}

		// The return leg sells exactly what the forward leg bought, variant
		// substitutions included.
		ret := b.quoter.FetchBest(ctx, forward.TokenOut, forward.TokenIn, forward.AmountOut)
		if ret == nil {
			b.logger.Debug(ctx, "no return quote", "pair", pair.String())
			continue
		}

		opp := b.Build(ctx, base, quote, size, *forward, *ret)
		if opp.GrossSpreadBps < minSpreadBps {
			continue
		}
		out = append(out, opp)
	}

	span.SetAttributes(attribute.Int("opportunities", len(out)))
	return out
}

// tradeSize resolves the notional for a pair: explicit override, then the
// base asset's configured default, then the fallback asset's default. The
// last resort substitutes an unrelated notional, so it is logged loudly
// rather than applied silently.
func (b *Builder) tradeSize(ctx context.Context, baseSymbol string, overrides map[string]*big.Int) *big.Int {
	if overrides != nil {
		if size, ok := overrides[baseSymbol]; ok && size != nil && size.Sign() > 0 {
			return size
		}
	}
	if size, ok := b.defaultSizes[baseSymbol]; ok && size != nil && size.Sign() > 0 {
		return size
	}
	if size, ok := b.defaultSizes[b.cfg.FallbackSymbol]; ok && size != nil && size.Sign() > 0 {
		b.logger.Warn(ctx, "no trade size for asset, borrowing fallback default",
			"asset", baseSymbol, "fallback", b.cfg.FallbackSymbol)
		return size
	}
	return nil
}

// estimateGas prices the round trip's gas in USD: flashloan overhead plus
// one per-leg estimate per venue kind. A missing gas price or native-asset
// price degrades to a nil cost, never an aborted build.
func (b *Builder) estimateGas(ctx context.Context, forwardVenue, returnVenue string) *domain.GasCost {
	price, err := b.fees.GasPrice(ctx)
	if err != nil {
		b.logger.Warn(ctx, "gas price unavailable, omitting gas cost from estimate")
		return nil
	}

	units := b.cfg.Gas.FlashloanUnits + b.legUnits(forwardVenue) + b.legUnits(returnVenue)

	nativeTok, ok := b.registry.BySymbol("WETH")
	if !ok {
		return nil
	}
	nativePrice, err := b.valuation.PriceUSD(ctx, nativeTok.Primary())
	if err != nil {
		b.logger.Warn(ctx, "native asset price unavailable, omitting gas cost from estimate")
		return nil
	}

	return domain.NewGasCost(units, price.Wei, nativePrice)
}

// legUnits maps a venue to its per-swap gas estimate: concentrated-liquidity
// swaps cross ticks and cost more than constant-product ones.
func (b *Builder) legUnits(venue string) uint64 {
	if venue == "uniswapv3" {
		return b.cfg.Gas.CLSwapUnits
	}
	return b.cfg.Gas.V2SwapUnits
}
