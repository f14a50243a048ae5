// Package ethereum provides read-only access to the target rollup through
// go-ethereum: a contract caller for eth_call and a cached gas oracle.
package ethereum

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dvega/spreadscan/internal/apperror"
	"github.com/dvega/spreadscan/internal/logger"
)

const (
	tracerName = "github.com/dvega/spreadscan/business/blockchain/infra/ethereum"
	meterName  = "github.com/dvega/spreadscan/business/blockchain/infra/ethereum"
)

// CallerConfig holds settings for the contract caller.
type CallerConfig struct {
	RPCURL      string
	ChainID     uint64
	CallTimeout time.Duration
}

// callerMetrics holds OTEL metric instruments.
type callerMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// Caller issues eth_call against a single rollup node. It is the only
// transport the venue adapters depend on.
type Caller struct {
	config CallerConfig
	logger logger.LoggerInterface
	client *ethclient.Client

	tracer  trace.Tracer
	metrics *callerMetrics
}

// Dial connects to the configured RPC endpoint and verifies the chain ID.
func Dial(ctx context.Context, cfg CallerConfig, log logger.LoggerInterface) (*Caller, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("dial %s", cfg.RPCURL)))
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, apperror.New(apperror.CodeRPCConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("chain id check"))
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		client.Close()
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("connected to chain %d, expected %d", chainID.Uint64(), cfg.ChainID)))
	}

	c := &Caller{
		config: cfg,
		logger: log,
		client: client,
		tracer: otel.Tracer(tracerName),
	}

	if err := c.initMetrics(); err != nil {
		client.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	log.Info(ctx, "connected to rollup node", "url", cfg.RPCURL, "chain_id", chainID.Uint64())

	return c, nil
}

// initMetrics initializes OTEL metric instruments.
func (c *Caller) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &callerMetrics{}

	c.metrics.calls, err = meter.Int64Counter(
		"rpc_calls_total",
		metric.WithDescription("Total eth_call requests"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	c.metrics.failures, err = meter.Int64Counter(
		"rpc_call_failures_total",
		metric.WithDescription("Failed eth_call requests"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	c.metrics.duration, err = meter.Float64Histogram(
		"rpc_call_duration_seconds",
		metric.WithDescription("eth_call round-trip duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	return nil
}

// CallContract performs a read-only eth_call with the configured timeout.
func (c *Caller) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "ethereum.call_contract",
		trace.WithAttributes(attribute.String("to", to.Hex())),
	)
	defer span.End()

	if c.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()
	}

	c.metrics.calls.Add(ctx, 1)
	start := time.Now()

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	c.metrics.duration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		c.metrics.failures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "ok")
	return out, nil
}

// Client exposes the underlying ethclient for callers that need more than
// eth_call, such as the gas oracle.
func (c *Caller) Client() *ethclient.Client {
	return c.client
}

// Close releases the underlying connection.
func (c *Caller) Close() {
	c.client.Close()
}
