// Package app implements USD valuation on top of the venue adapters. The
// anchor asset is worth exactly one dollar per whole unit by definition;
// everything else is priced by quoting a reference-sized swap into the
// anchor on the first venue that answers.
package app

import (
	"context"
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

	pricingapp "github.com/dvega/spreadscan/business/pricing/app"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/cache"
	"github.com/dvega/spreadscan/internal/logger"
)

const (
	tracerName = "valuation"
	meterName  = "valuation"

	// DefaultPriceTTL bounds how stale a cached USD price may be.
	DefaultPriceTTL = 10 * time.Second
)

// serviceMetrics holds OTEL metric instruments.
type serviceMetrics struct {
	lookups   metric.Int64Counter
	cacheHits metric.Int64Counter
	failures  metric.Int64Counter
}

// Config holds valuation settings.
type Config struct {
	// AnchorSymbol names the asset pinned at $1 per whole unit.
	AnchorSymbol string
	// ReferenceSizes maps token addresses to the raw amount quoted when
	// pricing them. Missing entries fall back to one whole unit.
	ReferenceSizes map[common.Address]*big.Int
	// PriceTTL overrides DefaultPriceTTL when positive.
	PriceTTL time.Duration
}

// Service prices tokens and raw amounts in USD.
type Service struct {
	registry *asset.Registry
	anchor   *asset.Token
	sources  []pricingapp.LiquiditySource
	refSizes map[common.Address]*big.Int

	prices *cache.Cache[string, decimal.Decimal]

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *serviceMetrics
}

// NewService creates a valuation service. Sources are tried in order: the
// first is the primary pricing venue, the rest are fallbacks.
func NewService(cfg Config, registry *asset.Registry, sources []pricingapp.LiquiditySource, log logger.LoggerInterface) (*Service, error) {
	anchorSymbol := cfg.AnchorSymbol
	if anchorSymbol == "" {
		anchorSymbol = "USDC"
	}
	anchor, ok := registry.BySymbol(anchorSymbol)
	if !ok {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("valuation anchor asset not registered: "+anchorSymbol))
	}

	ttl := cfg.PriceTTL
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}

	s := &Service{
		registry: registry,
		anchor:   anchor,
		sources:  sources,
		refSizes: cfg.ReferenceSizes,
		prices:   cache.New[string, decimal.Decimal](ttl),
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &serviceMetrics{}

	s.metrics.lookups, err = meter.Int64Counter(
		"valuation_lookups_total",
		metric.WithDescription("Total USD price lookups"),
	)
	if err != nil {
		return err
	}

	s.metrics.cacheHits, err = meter.Int64Counter(
		"valuation_cache_hits_total",
		metric.WithDescription("USD price lookups served from cache"),
	)
	if err != nil {
		return err
	}

	s.metrics.failures, err = meter.Int64Counter(
		"valuation_failures_total",
		metric.WithDescription("USD price lookups no venue could serve"),
	)
	if err != nil {
		return err
	}

	return nil
}

// PriceUSD returns the USD price of one whole unit of the token at addr.
func (s *Service) PriceUSD(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "valuation.price",
		trace.WithAttributes(attribute.String("token", addr.Hex())),
	)
	defer span.End()

	s.metrics.lookups.Add(ctx, 1)

	// Any variant of the anchor asset is a dollar by definition.
	if s.anchor.HasAddress(addr) {
		return decimal.NewFromInt(1), nil
	}

	key := strings.ToLower(addr.Hex())
	if price, ok := s.prices.Get(key); ok {
		s.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return price, nil
	}

	tok, ok := s.registry.ByAddress(addr)
	if !ok {
		s.metrics.failures.Add(ctx, 1)
		span.SetStatus(codes.Error, "unknown token")
		return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
			apperror.WithContext("token not registered: "+addr.Hex()))
	}

	refSize := s.referenceSize(addr, tok)
	anchorAddr := s.anchor.Primary()

	for _, src := range s.sources {
		quote := src.Quote(ctx, addr, anchorAddr, refSize)
		if !quote.Success {
			span.AddEvent("venue_failed", trace.WithAttributes(
				attribute.String("venue", src.Name()),
				attribute.String("code", string(quote.FailCode)),
			))
			continue
		}

		// price per whole unit = (out / 10^anchorDec) / (ref / 10^tokenDec)
		out := decimal.NewFromBigInt(quote.AmountOut, -int32(s.anchor.Decimals()))
		ref := decimal.NewFromBigInt(refSize, -int32(tok.Decimals()))
		if ref.IsZero() {
			break
		}
		price := out.Div(ref)

		s.prices.Set(key, price)
		span.SetAttributes(
			attribute.String("price_usd", price.String()),
			attribute.String("venue", src.Name()),
		)
		span.SetStatus(codes.Ok, "priced")
		return price, nil
	}

	s.metrics.failures.Add(ctx, 1)
	span.SetStatus(codes.Error, "no venue priced token")
	return decimal.Zero, apperror.New(apperror.CodePriceUnavailable,
		apperror.WithContext("no venue priced "+s.registry.LabelFor(addr)))
}

// ValueUSD converts a raw token amount to USD. Unresolvable prices come back
// as zero, never as an error: a missing price must degrade an opportunity,
// not abort a scan.
func (s *Service) ValueUSD(ctx context.Context, addr common.Address, amount *big.Int) decimal.Decimal {
	if amount == nil || amount.Sign() <= 0 {
		return decimal.Zero
	}

	price, err := s.PriceUSD(ctx, addr)
	if err != nil {
		s.logger.Warn(ctx, "valuation unavailable, using zero",
			"token", s.registry.LabelFor(addr))
		return decimal.Zero
	}

	dec := uint8(18)
	if tok, ok := s.registry.ByAddress(addr); ok {
		dec = tok.Decimals()
	}

	whole := decimal.NewFromBigInt(amount, -int32(dec))
	return whole.Mul(price)
}

// ClearCache drops every cached price. The monitor calls this when venue
// health changes so stale prices cannot outlive a reconfiguration.
func (s *Service) ClearCache() {
	s.prices.Clear()
}

func (s *Service) referenceSize(addr common.Address, tok *asset.Token) *big.Int {
	if s.refSizes != nil {
		if size, ok := s.refSizes[addr]; ok && size != nil && size.Sign() > 0 {
			return size
		}
	}
	return tok.OneUnit()
}
