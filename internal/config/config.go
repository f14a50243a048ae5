// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/dvega/spreadscan/internal/asset"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Venues    VenuesConfig    `mapstructure:"venues"`
	Tokens    []TokenConfig   `mapstructure:"tokens"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ChainConfig holds rollup RPC settings.
type ChainConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	ChainID     uint64        `mapstructure:"chain_id"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// VenuesConfig groups the per-venue adapter settings.
type VenuesConfig struct {
	UniswapV3 UniswapV3Config `mapstructure:"uniswapv3"`
	Camelot   CamelotConfig   `mapstructure:"camelot"`
	Ramses    RamsesConfig    `mapstructure:"ramses"`
	CurvePool CurvePoolConfig `mapstructure:"curvepool"`
}

// UniswapV3Config holds the concentrated-liquidity venue settings.
type UniswapV3Config struct {
	Enabled          bool          `mapstructure:"enabled"`
	QuoterAddress    string        `mapstructure:"quoter_address"`
	FeeTiers         []int64       `mapstructure:"fee_tiers"`
	Intermediates    []string      `mapstructure:"intermediates"` // symbols for two-hop routes
	PathTimeout      time.Duration `mapstructure:"path_timeout"`
	MaxInFlight      int           `mapstructure:"max_in_flight"`
	ResolutionPolicy string        `mapstructure:"resolution_policy"`
}

// CamelotConfig holds the constant-product venue settings.
type CamelotConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	FactoryAddress   string `mapstructure:"factory_address"`
	ResolutionPolicy string `mapstructure:"resolution_policy"`
}

// RamsesConfig holds the solidly-style venue settings.
type RamsesConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	RouterAddress    string `mapstructure:"router_address"`
	ResolutionPolicy string `mapstructure:"resolution_policy"`
}

// CurvePoolConfig holds the optional stable-pool venue settings.
// Off by default; when enabled it requires an explicit pool address.
type CurvePoolConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	PoolAddress      string `mapstructure:"pool_address"`
	ResolutionPolicy string `mapstructure:"resolution_policy"`
}

// TokenConfig describes one canonical asset and its on-chain variants.
type TokenConfig struct {
	Symbol           string          `mapstructure:"symbol"`
	Decimals         uint8           `mapstructure:"decimals"`
	Stable           bool            `mapstructure:"stable"`
	Variants         []VariantConfig `mapstructure:"variants"`
	ReferenceSize    string          `mapstructure:"reference_size"`     // human units, valuation reference quote
	DefaultTradeSize string          `mapstructure:"default_trade_size"` // human units, scan default
}

// VariantConfig is one contract address for a token.
type VariantConfig struct {
	Address string `mapstructure:"address"`
	Label   string `mapstructure:"label"`
}

// StrategyConfig holds scan thresholds and gas estimates.
type StrategyConfig struct {
	Pairs            []string  `mapstructure:"pairs"` // "WETH/USDC"
	MinProfitUSD     float64   `mapstructure:"min_profit_usd"`
	MaxSlippageBps   int64     `mapstructure:"max_slippage_bps"`
	MinSpreadBps     int64     `mapstructure:"min_spread_bps"` // display filter, may be negative
	FailureThreshold int       `mapstructure:"failure_threshold"`
	Gas              GasConfig `mapstructure:"gas"`
}

// GasConfig holds conservative per-leg gas-unit estimates.
type GasConfig struct {
	FlashloanUnits uint64 `mapstructure:"flashloan_units"`
	CLSwapUnits    uint64 `mapstructure:"cl_swap_units"`
	V2SwapUnits    uint64 `mapstructure:"v2_swap_units"`
}

// MonitorConfig holds continuous-scanner settings.
type MonitorConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	SummaryInterval time.Duration `mapstructure:"summary_interval"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`
	ObserveAll      bool          `mapstructure:"observe_all"` // record all recognized gaps, not only profitable ones
	DatabaseURL     string        `mapstructure:"database_url"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
	HealthPort     int    `mapstructure:"health_port"`
}

// QuoterAddressHex returns the quoter address as common.Address.
func (c *UniswapV3Config) QuoterAddressHex() common.Address {
	return common.HexToAddress(c.QuoterAddress)
}

// FactoryAddressHex returns the factory address as common.Address.
func (c *CamelotConfig) FactoryAddressHex() common.Address {
	return common.HexToAddress(c.FactoryAddress)
}

// RouterAddressHex returns the router address as common.Address.
func (c *RamsesConfig) RouterAddressHex() common.Address {
	return common.HexToAddress(c.RouterAddress)
}

// PoolAddressHex returns the pool address as common.Address.
func (c *CurvePoolConfig) PoolAddressHex() common.Address {
	return common.HexToAddress(c.PoolAddress)
}

// BuildRegistry converts the configured token list into an asset registry.
// With no tokens configured, the well-known Arbitrum set is used.
func (c *Config) BuildRegistry() *asset.Registry {
	if len(c.Tokens) == 0 {
		return asset.DefaultRegistry()
	}
	r := asset.NewRegistry()
	for _, tc := range c.Tokens {
		variants := make([]asset.Variant, 0, len(tc.Variants))
		for _, vc := range tc.Variants {
			variants = append(variants, asset.Variant{
				Address: common.HexToAddress(vc.Address),
				Label:   vc.Label,
			})
		}
		r.Register(asset.NewToken(tc.Symbol, tc.Decimals, tc.Stable, variants...))
	}
	return r
}

// TokenBySymbol returns the TokenConfig for a symbol, case-insensitively.
func (c *Config) TokenBySymbol(symbol string) (TokenConfig, bool) {
	for _, tc := range c.Tokens {
		if strings.EqualFold(tc.Symbol, symbol) {
			return tc, true
		}
	}
	return TokenConfig{}, false
}

// Validate checks the loaded configuration for consistency.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Strategy.MaxSlippageBps < 0 || c.Strategy.MaxSlippageBps > 10000 {
		return fmt.Errorf("strategy.max_slippage_bps must be within [0, 10000], got %d", c.Strategy.MaxSlippageBps)
	}
	if c.Strategy.FailureThreshold <= 0 {
		return fmt.Errorf("strategy.failure_threshold must be positive, got %d", c.Strategy.FailureThreshold)
	}
	for _, p := range c.Strategy.Pairs {
		if len(strings.Split(p, "/")) != 2 {
			return fmt.Errorf("strategy.pairs entry %q is not BASE/QUOTE", p)
		}
	}
	if c.Venues.UniswapV3.Enabled && c.Venues.UniswapV3.QuoterAddress == "" {
		return fmt.Errorf("venues.uniswapv3.quoter_address is required when enabled")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	return nil
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SPREADSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "SPREADSCAN_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "SPREADSCAN_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "SPREADSCAN_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("chain.rpc_url", "SPREADSCAN_RPC_URL", "RPC_URL")
	v.BindEnv("chain.chain_id", "SPREADSCAN_CHAIN_ID", "CHAIN_ID")

	v.BindEnv("monitor.database_url", "SPREADSCAN_DATABASE_URL", "DATABASE_URL")

	v.BindEnv("telemetry.enabled", "SPREADSCAN_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "SPREADSCAN_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "SPREADSCAN_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spreadscan")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("chain.chain_id", asset.ChainIDArbitrum)
	v.SetDefault("chain.call_timeout", "5s")

	v.SetDefault("venues.uniswapv3.enabled", true)
	v.SetDefault("venues.uniswapv3.quoter_address", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	v.SetDefault("venues.uniswapv3.fee_tiers", []int64{100, 500, 3000, 10000})
	v.SetDefault("venues.uniswapv3.intermediates", []string{"WETH", "USDC"})
	v.SetDefault("venues.uniswapv3.path_timeout", "3s")
	v.SetDefault("venues.uniswapv3.max_in_flight", 3)
	v.SetDefault("venues.uniswapv3.resolution_policy", "automatic")

	v.SetDefault("venues.camelot.enabled", true)
	v.SetDefault("venues.camelot.factory_address", "0x6EcCab422D763aC031210895C81787E87B43A652")
	v.SetDefault("venues.camelot.resolution_policy", "automatic")

	v.SetDefault("venues.ramses.enabled", true)
	v.SetDefault("venues.ramses.router_address", "0xAAA87963EFeB6f7E0a2711F397663105Acb1805e")
	v.SetDefault("venues.ramses.resolution_policy", "automatic")

	v.SetDefault("venues.curvepool.enabled", false)
	v.SetDefault("venues.curvepool.resolution_policy", "disabled")

	v.SetDefault("strategy.pairs", []string{"WETH/USDC", "WETH/USDT", "ARB/USDC"})
	v.SetDefault("strategy.min_profit_usd", 3.0)
	v.SetDefault("strategy.max_slippage_bps", 50)
	v.SetDefault("strategy.min_spread_bps", -100)
	v.SetDefault("strategy.failure_threshold", 5)
	v.SetDefault("strategy.gas.flashloan_units", 280000)
	v.SetDefault("strategy.gas.cl_swap_units", 190000)
	v.SetDefault("strategy.gas.v2_swap_units", 130000)

	v.SetDefault("monitor.interval", "30s")
	v.SetDefault("monitor.freshness_window", "5m")
	v.SetDefault("monitor.summary_interval", "1h")
	v.SetDefault("monitor.error_backoff", "10s")
	v.SetDefault("monitor.observe_all", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "spreadscan")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.health_port", 8081)
}
