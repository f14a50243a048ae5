// Package uniswapv3 implements the LiquiditySource interface for a
// concentrated-liquidity venue quoted through the QuoterV2 contract.
package uniswapv3

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
	"golang.org/x/sync/errgroup"

	"github.com/dvega/spreadscan/business/pricing/app"
	"github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/circuitbreaker"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/logger"
	"github.com/dvega/spreadscan/internal/ratelimit"
)

const (
	tracerName = "uniswapv3"
	meterName  = "uniswapv3"

	// VenueName identifies this adapter in quotes and diagnostics.
	VenueName = "uniswapv3"

	defaultPathTimeout = 3 * time.Second
	defaultMaxInFlight = 4
)

// Ensure Provider implements LiquiditySource.
var _ app.LiquiditySource = (*Provider)(nil)

// providerMetrics holds OTEL metric instruments.
type providerMetrics struct {
	quotesTotal   metric.Int64Counter
	quoteErrors   metric.Int64Counter
	quoteLatency  metric.Float64Histogram
	pathsTried    metric.Int64Counter
	pairsDisabled metric.Int64Counter
}

// pathCandidate is one concrete route to try against the quoter.
type pathCandidate struct {
	tokens []common.Address
	fees   []int64
	desc   string
}

// pathResult pairs a candidate with its outcome.
type pathResult struct {
	amountOut *big.Int
	err       error
}

// Provider quotes swaps through QuoterV2. For every request it enumerates
// direct pools at each fee tier plus two-hop routes through the configured
// intermediate tokens, races them under a bounded worker pool, and keeps the
// route with the greatest output.
type Provider struct {
	caller    app.ContractCaller
	quoter    common.Address
	quoterABI abi.ABI
	feeTiers  []int64

	intermediates []common.Address
	pathTimeout   time.Duration
	maxInFlight   int

	resolver *domain.Resolver
	policy   domain.ResolutionPolicy
	failures *app.FailureTracker
	limiter  *ratelimit.Limiter

	logger logger.LoggerInterface
	cb     *circuitbreaker.CircuitBreaker[[]byte]

	tracer  trace.Tracer
	metrics *providerMetrics
}

// NewProvider creates the concentrated-liquidity venue adapter.
func NewProvider(
	caller app.ContractCaller,
	cfg config.UniswapV3Config,
	resolver *domain.Resolver,
	failures *app.FailureTracker,
	limiter *ratelimit.Limiter,
	log logger.LoggerInterface,
) (*Provider, error) {
	parsedABI, err := abi.JSON(strings.NewReader(QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter ABI: %w", err)
	}

	policy, err := domain.ParsePolicy(cfg.ResolutionPolicy)
	if err != nil {
		return nil, fmt.Errorf("uniswapv3 resolution policy: %w", err)
	}

	feeTiers := cfg.FeeTiers
	if len(feeTiers) == 0 {
		feeTiers = []int64{FeeTier001, FeeTier005, FeeTier030, FeeTier100}
	}

	pathTimeout := cfg.PathTimeout
	if pathTimeout <= 0 {
		pathTimeout = defaultPathTimeout
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}

	p := &Provider{
		caller:      caller,
		quoter:      cfg.QuoterAddressHex(),
		quoterABI:   parsedABI,
		feeTiers:    feeTiers,
		pathTimeout: pathTimeout,
		maxInFlight: maxInFlight,
		resolver:    resolver,
		policy:      policy,
		failures:    failures,
		limiter:     limiter,
		logger:      log,
		cb:          circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("uniswapv3-quoter")),
		tracer:      otel.Tracer(tracerName),
	}

	for _, sym := range cfg.Intermediates {
		addr, ok := resolver.PrimaryOf(sym)
		if !ok {
			return nil, fmt.Errorf("unknown intermediate token %q", sym)
		}
		p.intermediates = append(p.intermediates, addr)
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
		"uniswapv3_quotes_total",
		metric.WithDescription("Total quote requests"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteErrors, err = meter.Int64Counter(
		"uniswapv3_quote_errors_total",
		metric.WithDescription("Quote requests that produced no route"),
	)
	if err != nil {
		return err
	}

	p.metrics.quoteLatency, err = meter.Float64Histogram(
		"uniswapv3_quote_latency_ms",
		metric.WithDescription("Quote request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	p.metrics.pathsTried, err = meter.Int64Counter(
		"uniswapv3_paths_tried_total",
		metric.WithDescription("Candidate routes sent to the quoter"),
	)
	if err != nil {
		return err
	}

	p.metrics.pairsDisabled, err = meter.Int64Counter(
		"uniswapv3_pairs_disabled_total",
		metric.WithDescription("Pairs shut off after consecutive failures"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Name identifies the venue.
func (p *Provider) Name() string { return VenueName }

// Quote asks the quoter for the best route from tokenIn to tokenOut.
func (p *Provider) Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Quote {
	ctx, span := p.tracer.Start(ctx, "uniswapv3.quote",
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

	resolved := p.resolver.Resolve(tokenIn, tokenOut, p.policy)

	quote := p.quoteResolved(ctx, resolved, amountIn)

	// Under the automatic policy a failed pair is retried with the sibling
	// variants before giving up; provenance records the substitution.
	if !quote.Success && p.policy == domain.PolicyAutomatic {
		quote = p.retryWithSiblings(ctx, resolved, amountIn, quote)
	}

	p.metrics.quoteLatency.Record(ctx, float64(time.Since(start).Milliseconds()))

	if !quote.Success {
		p.metrics.quoteErrors.Add(ctx, 1)
		span.SetStatus(codes.Error, string(quote.FailCode))
		if p.failures.RecordFailure(tokenIn, tokenOut) {
			p.metrics.pairsDisabled.Add(ctx, 1)
			p.logger.Warn(ctx, "pair disabled after consecutive failures",
				"venue", VenueName,
				"token_in", p.resolver.SymbolFor(tokenIn),
				"token_out", p.resolver.SymbolFor(tokenOut),
			)
		}
		return quote
	}

	p.failures.RecordSuccess(tokenIn, tokenOut)

	span.SetAttributes(
		attribute.String("amount_out", quote.AmountOut.String()),
		attribute.String("path", quote.Route.PathDesc),
	)
	span.SetStatus(codes.Ok, "quote received")

	p.logger.Debug(ctx, "uniswapv3 quote",
		"token_in", p.resolver.SymbolFor(tokenIn),
		"token_out", p.resolver.SymbolFor(tokenOut),
		"amount_in", amountIn.String(),
		"amount_out", quote.AmountOut.String(),
		"path", quote.Route.PathDesc,
	)

	return quote
}

// quoteResolved enumerates candidate routes for an already-resolved pair and
// returns the best successful quote, or a typed failure when every route
// comes up empty.
func (p *Provider) quoteResolved(ctx context.Context, pair domain.ResolvedPair, amountIn *big.Int) domain.Quote {
	candidates := p.enumeratePaths(pair.TokenIn, pair.TokenOut)
	results := make([]pathResult, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxInFlight)

	for i, cand := range candidates {
		g.Go(func() error {
			p.metrics.pathsTried.Add(gctx, 1)

			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					results[i] = pathResult{err: err}
					return nil
				}
			}

			pathCtx, cancel := context.WithTimeout(gctx, p.pathTimeout)
			defer cancel()

			out, err := p.quotePath(pathCtx, cand, amountIn)
			results[i] = pathResult{amountOut: out, err: err}
			return nil
		})
	}
	// Workers never return errors; failures live in the results slice.
	_ = g.Wait()

	bestIdx := -1
	for i, res := range results {
		if res.err != nil || res.amountOut == nil {
			continue
		}
		if bestIdx < 0 || res.amountOut.Cmp(results[bestIdx].amountOut) > 0 {
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		code, reason := classifyPathErrors(results)
		return domain.FailedQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn, code, reason)
	}

	best := candidates[bestIdx]
	return domain.NewQuote(VenueName, pair.TokenIn, pair.TokenOut, amountIn, results[bestIdx].amountOut,
		domain.RouteMeta{
			PathDesc:      best.desc,
			FeeTiers:      best.fees,
			InProvenance:  pair.InProvenance,
			OutProvenance: pair.OutProvenance,
		})
}

// retryWithSiblings tries the variant combinations of a multi-variant pair.
// The first successful combination wins; otherwise the original failure is
// returned untouched.
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

// enumeratePaths builds the candidate set: one direct route per fee tier plus
// two-hop routes through every configured intermediate at each tier
// combination. Intermediates equal to either endpoint are skipped.
func (p *Provider) enumeratePaths(tokenIn, tokenOut common.Address) []pathCandidate {
	var candidates []pathCandidate

	for _, fee := range p.feeTiers {
		candidates = append(candidates, pathCandidate{
			tokens: []common.Address{tokenIn, tokenOut},
			fees:   []int64{fee},
			desc:   fmt.Sprintf("%s -%d-> %s", p.resolver.SymbolFor(tokenIn), fee, p.resolver.SymbolFor(tokenOut)),
		})
	}

	for _, mid := range p.intermediates {
		if mid == tokenIn || mid == tokenOut {
			continue
		}
		for _, feeA := range p.feeTiers {
			for _, feeB := range p.feeTiers {
				candidates = append(candidates, pathCandidate{
					tokens: []common.Address{tokenIn, mid, tokenOut},
					fees:   []int64{feeA, feeB},
					desc: fmt.Sprintf("%s -%d-> %s -%d-> %s",
						p.resolver.SymbolFor(tokenIn), feeA,
						p.resolver.SymbolFor(mid), feeB,
						p.resolver.SymbolFor(tokenOut)),
				})
			}
		}
	}

	return candidates
}

// quotePath sends one candidate to the quoter. Direct routes use
// quoteExactInputSingle, multi-hop routes the packed-path quoteExactInput.
func (p *Provider) quotePath(ctx context.Context, cand pathCandidate, amountIn *big.Int) (*big.Int, error) {
	var (
		callData []byte
		err      error
		method   string
	)

	if len(cand.tokens) == 2 {
		method = "quoteExactInputSingle"
		callData, err = p.quoterABI.Pack(method, QuoteExactInputSingleParams{
			TokenIn:           cand.tokens[0],
			TokenOut:          cand.tokens[1],
			AmountIn:          amountIn,
			Fee:               big.NewInt(cand.fees[0]),
			SqrtPriceLimitX96: big.NewInt(0),
		})
	} else {
		method = "quoteExactInput"
		var path []byte
		path, err = EncodePath(cand.tokens, cand.fees)
		if err != nil {
			return nil, err
		}
		callData, err = p.quoterABI.Pack(method, path, amountIn)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	raw, err := p.cb.Execute(func() ([]byte, error) {
		return p.caller.CallContract(ctx, p.quoter, callData)
	})
	if err != nil {
		return nil, err
	}

	outputs, err := p.quoterABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(outputs) < 1 {
		return nil, fmt.Errorf("unexpected output length: %d", len(outputs))
	}

	amountOut, ok := outputs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	return amountOut, nil
}

// classifyPathErrors folds per-path failures into one quote failure code.
// Timeouts dominate reverts: a venue that answers "no pool" is configured
// out, a venue that stops answering is a transport problem.
func classifyPathErrors(results []pathResult) (apperror.Code, string) {
	var sawRevert, sawTimeout bool
	var firstErr error

	for _, res := range results {
		if res.err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = res.err
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			sawTimeout = true
		} else if strings.Contains(res.err.Error(), "execution reverted") {
			sawRevert = true
		}
	}

	switch {
	case sawTimeout:
		return apperror.CodeQuoteTimeout, "quoter calls timed out"
	case sawRevert:
		return apperror.CodePoolNotFound, "no pool answered on any route"
	case firstErr != nil:
		return apperror.CodeQuoteReverted, firstErr.Error()
	default:
		return apperror.CodePoolNotFound, "no route produced output"
	}
}
