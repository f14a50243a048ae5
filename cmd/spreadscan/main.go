// Package main is the entry point for the spreadscan DEX gap scanner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	arbapp "github.com/dvega/spreadscan/business/arbitrage/app"
	arbinfra "github.com/dvega/spreadscan/business/arbitrage/infra"
	"github.com/dvega/spreadscan/business/blockchain/infra/ethereum"
	monitorapp "github.com/dvega/spreadscan/business/monitor/app"
	monitorpg "github.com/dvega/spreadscan/business/monitor/infra/postgres"
	pricingapp "github.com/dvega/spreadscan/business/pricing/app"
	pricingdomain "github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/business/pricing/infra/camelot"
	"github.com/dvega/spreadscan/business/pricing/infra/curvepool"
	"github.com/dvega/spreadscan/business/pricing/infra/ramses"
	"github.com/dvega/spreadscan/business/pricing/infra/uniswapv3"
	valuationapp "github.com/dvega/spreadscan/business/valuation/app"
	"github.com/dvega/spreadscan/internal/apm"
	"github.com/dvega/spreadscan/internal/asset"
	"github.com/dvega/spreadscan/internal/config"
	"github.com/dvega/spreadscan/internal/health"
	"github.com/dvega/spreadscan/internal/logger"
	"github.com/dvega/spreadscan/internal/metrics"
	"github.com/dvega/spreadscan/internal/numeric"
	"github.com/dvega/spreadscan/internal/ratelimit"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// rpcRequestsPerMinute bounds how hard the scanner leans on the RPC node.
const rpcRequestsPerMinute = 600

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	once := flag.Bool("once", false, "Run one scan and exit instead of monitoring")
	minSpread := flag.Int64("min-spread", 0, "Override the minimum gross spread filter in bps (may be negative)")
	observeAll := flag.Bool("observe-all", false, "Record every recognized gap, not only profitable ones")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("spreadscan %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	var minSpreadSet bool
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "min-spread" {
			minSpreadSet = true
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	opts := runOptions{
		configPath: *configPath,
		once:       *once,
		observeAll: *observeAll,
	}
	if minSpreadSet {
		opts.minSpreadBps = minSpread
	}

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath   string
	once         bool
	observeAll   bool
	minSpreadBps *int64 // nil means use the configured value
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}
	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	log.Info(ctx, "starting spreadscan",
		"version", version,
		"environment", cfg.App.Environment,
		"chain_id", cfg.Chain.ChainID,
	)

	// Observability, if enabled.
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthPort := cfg.Telemetry.HealthPort
	if healthPort == 0 {
		healthPort = 8081
	}
	healthServer := health.NewServer(healthPort, version)

	// Chain access.
	caller, err := ethereum.Dial(ctx, ethereum.CallerConfig{
		RPCURL:      cfg.Chain.RPCURL,
		ChainID:     cfg.Chain.ChainID,
		CallTimeout: cfg.Chain.CallTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to connect to rpc: %w", err)
	}
	defer caller.Close()

	healthServer.RegisterCheck("rpc", func(ctx context.Context) (bool, string) {
		if _, err := caller.Client().BlockNumber(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	})

	oracle, err := ethereum.NewGasOracle(ethereum.DefaultGasOracleConfig(), caller.Client(), log)
	if err != nil {
		return fmt.Errorf("failed to create gas oracle: %w", err)
	}

	// Pricing.
	registry := cfg.BuildRegistry()
	resolver := pricingdomain.NewResolver(registry)
	failures := pricingapp.NewFailureTracker(cfg.Strategy.FailureThreshold)
	limiter := ratelimit.New(rpcRequestsPerMinute)

	var sources []pricingapp.LiquiditySource
	if cfg.Venues.UniswapV3.Enabled {
		p, err := uniswapv3.NewProvider(caller, cfg.Venues.UniswapV3, resolver, failures, limiter, log)
		if err != nil {
			return fmt.Errorf("failed to create uniswapv3 adapter: %w", err)
		}
		sources = append(sources, p)
	}
	if cfg.Venues.Camelot.Enabled {
		p, err := camelot.NewProvider(caller, cfg.Venues.Camelot, resolver, failures, limiter, log)
		if err != nil {
			return fmt.Errorf("failed to create camelot adapter: %w", err)
		}
		sources = append(sources, p)
	}
	if cfg.Venues.Ramses.Enabled {
		p, err := ramses.NewProvider(caller, cfg.Venues.Ramses, resolver, failures, limiter, log)
		if err != nil {
			return fmt.Errorf("failed to create ramses adapter: %w", err)
		}
		sources = append(sources, p)
	}
	if cfg.Venues.CurvePool.Enabled {
		p, err := curvepool.NewProvider(caller, cfg.Venues.CurvePool, resolver, failures, log)
		if err != nil {
			return fmt.Errorf("failed to create curvepool adapter: %w", err)
		}
		sources = append(sources, p)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no venues enabled")
	}
	aggregator := pricingapp.NewAggregator(sources, log)
	log.Info(ctx, "venues configured", "sources", aggregator.Sources())

	// Valuation.
	refSizes, defaultSizes, err := tokenAmounts(cfg, registry)
	if err != nil {
		return fmt.Errorf("invalid token amounts: %w", err)
	}
	valuation, err := valuationapp.NewService(valuationapp.Config{
		ReferenceSizes: refSizes,
	}, registry, sources, log)
	if err != nil {
		return fmt.Errorf("failed to create valuation service: %w", err)
	}

	// Opportunity evaluation.
	builder, err := arbapp.NewBuilder(aggregator, valuation, oracle, registry, defaultSizes, arbapp.BuilderConfig{
		MaxSlippageBps: cfg.Strategy.MaxSlippageBps,
		MinProfitUSD:   decimal.NewFromFloat(cfg.Strategy.MinProfitUSD),
		Gas:            cfg.Strategy.Gas,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create opportunity builder: %w", err)
	}

	pairs := make([]arbapp.Pair, 0, len(cfg.Strategy.Pairs))
	for _, s := range cfg.Strategy.Pairs {
		pair, err := arbapp.ParsePair(s)
		if err != nil {
			return fmt.Errorf("invalid pair: %w", err)
		}
		pairs = append(pairs, pair)
	}

	minSpreadBps := cfg.Strategy.MinSpreadBps
	if opts.minSpreadBps != nil {
		minSpreadBps = *opts.minSpreadBps
	}

	reporter := arbinfra.NewConsoleReporter(registry)

	if opts.once {
		opps := builder.Scan(ctx, pairs, nil, minSpreadBps)
		for i := range opps {
			reporter.Report(&opps[i])
		}
		log.Info(ctx, "scan complete", "opportunities", len(opps))
		return nil
	}

	// Persistence for monitor mode.
	var store monitorapp.GapStore = monitorapp.NopStore{}
	if cfg.Monitor.DatabaseURL != "" {
		pg, err := monitorpg.New(ctx, monitorpg.ClientConfig{DSN: cfg.Monitor.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()

		if err := pg.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		store = monitorpg.NewGapStore(pg.Pool())

		healthServer.RegisterCheck("database", func(ctx context.Context) (bool, string) {
			if err := pg.Pool().Ping(ctx); err != nil {
				return false, err.Error()
			}
			return true, ""
		})
		log.Info(ctx, "gap persistence enabled")
	} else {
		log.Warn(ctx, "no database configured, gaps will not be persisted")
	}

	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", healthPort)
	}
	defer healthServer.Stop(context.Background())

	monitor, err := monitorapp.NewMonitor(builder, store, reporter, monitorapp.Config{
		Interval:        cfg.Monitor.Interval,
		FreshnessWindow: cfg.Monitor.FreshnessWindow,
		SummaryInterval: cfg.Monitor.SummaryInterval,
		ErrorBackoff:    cfg.Monitor.ErrorBackoff,
		ObserveAll:      cfg.Monitor.ObserveAll || opts.observeAll,
		Pairs:           pairs,
		MinSpreadBps:    minSpreadBps,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	return monitor.Run(ctx)
}

// tokenAmounts converts the configured human-unit sizes into raw amounts:
// valuation reference sizes keyed by primary address and scan trade sizes
// keyed by canonical symbol.
func tokenAmounts(cfg *config.Config, registry *asset.Registry) (map[common.Address]*big.Int, map[string]*big.Int, error) {
	refSizes := make(map[common.Address]*big.Int)
	defaultSizes := make(map[string]*big.Int)

	for _, tc := range cfg.Tokens {
		tok, ok := registry.BySymbol(tc.Symbol)
		if !ok {
			continue
		}
		if tc.ReferenceSize != "" {
			raw, err := numeric.ParseUnits(tc.ReferenceSize, tok.Decimals())
			if err != nil {
				return nil, nil, fmt.Errorf("token %s reference_size: %w", tc.Symbol, err)
			}
			refSizes[tok.Primary()] = raw
		}
		if tc.DefaultTradeSize != "" {
			raw, err := numeric.ParseUnits(tc.DefaultTradeSize, tok.Decimals())
			if err != nil {
				return nil, nil, fmt.Errorf("token %s default_trade_size: %w", tc.Symbol, err)
			}
			defaultSizes[tok.Symbol()] = raw
		}
	}

	// The builder borrows the WETH size for pairs with none of their own, so
	// it must always exist.
	if _, ok := defaultSizes["WETH"]; !ok {
		if weth, ok := registry.BySymbol("WETH"); ok {
			defaultSizes["WETH"] = weth.OneUnit()
		}
	}

	return refSizes, defaultSizes, nil
}
