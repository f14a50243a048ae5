// Package app runs the continuous scan loop: scan, persist qualifying gaps,
// sweep stale ones, and surface periodic summaries.
package app

import (
	"context"
	"math/big"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	arbapp "github.com/dvega/spreadscan/business/arbitrage/app"
	arbdomain "github.com/dvega/spreadscan/business/arbitrage/domain"
	"github.com/dvega/spreadscan/business/monitor/domain"
	"github.com/dvega/spreadscan/internal/logger"
)

const (
	tracerName = "monitor"
	meterName  = "monitor"
)

const (
	defaultInterval        = 30 * time.Second
	defaultFreshnessWindow = 5 * time.Minute
	defaultSummaryInterval = time.Hour
	defaultErrorBackoff    = 5 * time.Second
	summaryTopN            = 5
)

// Scanner is the slice of the opportunity builder the monitor needs.
type Scanner interface {
	Scan(ctx context.Context, pairs []arbapp.Pair, sizes map[string]*big.Int, minSpreadBps int64) []arbdomain.Opportunity
}

// Config controls the scan loop.
type Config struct {
	// Interval between the end of one tick and the start of the next.
	// Ticks never overlap.
	Interval time.Duration
	// FreshnessWindow is how long an open record survives without being
	// re-observed before the sweep closes it.
	FreshnessWindow time.Duration
	// SummaryInterval is how often an aggregate summary is logged.
	SummaryInterval time.Duration
	// ErrorBackoff is the extra pause after a tick that hit store or scan
	// trouble.
	ErrorBackoff time.Duration

	// ObserveAll records every recognized gap instead of only
	// net-profit-positive ones.
	ObserveAll bool

	Pairs        []arbapp.Pair
	MinSpreadBps int64
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = defaultFreshnessWindow
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = defaultSummaryInterval
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaultErrorBackoff
	}
}

// monitorMetrics holds OTEL metric instruments.
type monitorMetrics struct {
	ticks     metric.Int64Counter
	recorded  metric.Int64Counter
	closed    metric.Int64Counter
	tickFails metric.Int64Counter
}

// Monitor drives the continuous loop. Ticks run strictly sequentially; a
// slow scan delays the next tick rather than stacking scans.
type Monitor struct {
	scanner  Scanner
	store    GapStore
	reporter Reporter // optional

	cfg Config

	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *monitorMetrics

	lastSummary time.Time
}

// NewMonitor creates a Monitor. reporter may be nil.
func NewMonitor(scanner Scanner, store GapStore, reporter Reporter, cfg Config, log logger.LoggerInterface) (*Monitor, error) {
	cfg.applyDefaults()

	m := &Monitor{
		scanner:  scanner,
		store:    store,
		reporter: reporter,
		cfg:      cfg,
		logger:   log,
		tracer:   otel.Tracer(tracerName),
	}

	if err := m.initMetrics(); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Monitor) initMetrics() error {
	meter := otel.Meter(meterName)

	var err error

	m.metrics = &monitorMetrics{}

	m.metrics.ticks, err = meter.Int64Counter(
		"monitor_ticks_total",
		metric.WithDescription("Completed scan ticks"),
	)
	if err != nil {
		return err
	}

	m.metrics.recorded, err = meter.Int64Counter(
		"monitor_gaps_recorded_total",
		metric.WithDescription("Price gap records inserted"),
	)
	if err != nil {
		return err
	}

	m.metrics.closed, err = meter.Int64Counter(
		"monitor_gaps_closed_total",
		metric.WithDescription("Stale price gap records closed by the sweep"),
	)
	if err != nil {
		return err
	}

	m.metrics.tickFails, err = meter.Int64Counter(
		"monitor_tick_failures_total",
		metric.WithDescription("Ticks that hit scan or store errors"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Run loops until ctx is cancelled. It never returns an error from inside
// the loop; persistence and scan trouble is logged, counted, and followed by
// a backoff.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info(ctx, "monitor started",
		"interval", m.cfg.Interval.String(),
		"pairs", len(m.cfg.Pairs),
		"observe_all", m.cfg.ObserveAll,
	)
	m.lastSummary = time.Now()

	for {
		failed := m.Tick(ctx)

		if time.Since(m.lastSummary) >= m.cfg.SummaryInterval {
			m.logSummary(ctx)
			m.lastSummary = time.Now()
		}

		pause := m.cfg.Interval
		if failed {
			pause += m.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			m.logger.Info(ctx, "monitor stopped")
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Tick runs one full cycle: scan all pairs, insert a record per qualifying
// opportunity, then sweep-close records older than the freshness window.
// Every observation becomes a fresh row; there is no deduplication against
// open records. Returns true if anything went wrong.
func (m *Monitor) Tick(ctx context.Context) bool {
	ctx, span := m.tracer.Start(ctx, "monitor.tick")
	defer span.End()

	m.metrics.ticks.Add(ctx, 1)

	failed := false

	opps := m.scanner.Scan(ctx, m.cfg.Pairs, nil, m.cfg.MinSpreadBps)
	for i := range opps {
		opp := &opps[i]
		if !m.qualifies(opp) {
			continue
		}
		if m.reporter != nil {
			m.reporter.Report(opp)
		}

		rec := domain.NewGapRecord(opp)
		if err := m.store.Insert(ctx, rec); err != nil {
			m.logger.Error(ctx, "failed to persist price gap",
				"pair", rec.Pair, "error", err)
			failed = true
			continue
		}
		m.metrics.recorded.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("executable", rec.Executable)))
	}

	cutoff := time.Now().Add(-m.cfg.FreshnessWindow)
	closed, err := m.store.CloseStale(ctx, cutoff)
	if err != nil {
		m.logger.Error(ctx, "failed to sweep stale price gaps", "error", err)
		failed = true
	} else if closed > 0 {
		m.metrics.closed.Add(ctx, closed)
		m.logger.Debug(ctx, "closed stale price gaps", "count", closed)
	}

	if failed {
		m.metrics.tickFails.Add(ctx, 1)
	}

	span.SetAttributes(
		attribute.Int("opportunities", len(opps)),
		attribute.Bool("failed", failed),
	)
	return failed
}

// qualifies applies the recording bar: net-profit-positive by default, every
// recognized gap when ObserveAll is set.
func (m *Monitor) qualifies(opp *arbdomain.Opportunity) bool {
	if m.cfg.ObserveAll {
		return opp.Recognized
	}
	return opp.NetProfitUSD.IsPositive()
}

func (m *Monitor) logSummary(ctx context.Context) {
	since := time.Now().Add(-m.cfg.SummaryInterval)

	stats, err := m.store.Aggregate(ctx, since)
	if err != nil {
		m.logger.Warn(ctx, "failed to aggregate gap stats", "error", err)
		return
	}

	m.logger.Info(ctx, "hourly gap summary",
		"window_start", stats.WindowStart.Format(time.RFC3339),
		"gaps", stats.Count,
		"executable", stats.ExecutableCount,
		"avg_spread_bps", stats.AvgSpreadBps,
		"max_spread_bps", stats.MaxSpreadBps,
		"avg_decay_seconds", stats.AvgDecaySeconds,
		"max_net_profit_usd", stats.MaxNetProfitUSD.StringFixed(2),
	)

	top, err := m.store.TopByProfit(ctx, summaryTopN)
	if err != nil {
		m.logger.Warn(ctx, "failed to load top gaps", "error", err)
		return
	}
	for i, rec := range top {
		m.logger.Info(ctx, "top gap",
			"rank", i+1,
			"pair", rec.Pair,
			"route", rec.ForwardVenue+" -> "+rec.ReturnVenue,
			"net_profit_usd", rec.NetProfitUSD.StringFixed(2),
			"gross_spread_bps", rec.GrossSpreadBps,
		)
	}
}
