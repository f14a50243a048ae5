package app

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	arbapp "github.com/dvega/spreadscan/business/arbitrage/app"
	arbdomain "github.com/dvega/spreadscan/business/arbitrage/domain"
	"github.com/dvega/spreadscan/business/monitor/domain"
	pricingdomain "github.com/dvega/spreadscan/business/pricing/domain"
	"github.com/dvega/spreadscan/internal/logger"
)

type fakeScanner struct {
	opps  []arbdomain.Opportunity
	scans int
}

func (f *fakeScanner) Scan(_ context.Context, _ []arbapp.Pair, _ map[string]*big.Int, _ int64) []arbdomain.Opportunity {
	f.scans++
	return f.opps
}

type memStore struct {
	mu        sync.Mutex
	records   []domain.PriceGapRecord
	insertErr error
	sweepErr  error
	sweeps    []time.Time
}

func (s *memStore) Insert(_ context.Context, rec domain.PriceGapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memStore) CloseStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepErr != nil {
		return 0, s.sweepErr
	}
	s.sweeps = append(s.sweeps, cutoff)
	var n int64
	for i := range s.records {
		if s.records[i].Status == domain.StatusOpen && s.records[i].CreatedAt.Before(cutoff) {
			s.records[i].Close(time.Now())
			n++
		}
	}
	return n, nil
}

func (s *memStore) Aggregate(_ context.Context, since time.Time) (domain.GapStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := domain.GapStats{WindowStart: since, MaxNetProfitUSD: decimal.Zero}
	for _, rec := range s.records {
		if rec.CreatedAt.Before(since) {
			continue
		}
		stats.Count++
		if rec.Executable {
			stats.ExecutableCount++
		}
		if rec.GrossSpreadBps > stats.MaxSpreadBps {
			stats.MaxSpreadBps = rec.GrossSpreadBps
		}
		if rec.NetProfitUSD.GreaterThan(stats.MaxNetProfitUSD) {
			stats.MaxNetProfitUSD = rec.NetProfitUSD
		}
	}
	return stats, nil
}

func (s *memStore) TopByProfit(_ context.Context, n int) ([]domain.PriceGapRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PriceGapRecord, len(s.records))
	copy(out, s.records)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *memStore) open() []domain.PriceGapRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PriceGapRecord
	for _, rec := range s.records {
		if rec.Status == domain.StatusOpen {
			out = append(out, rec)
		}
	}
	return out
}

type countingReporter struct {
	reported int
}

func (r *countingReporter) Report(_ *arbdomain.Opportunity) { r.reported++ }

func opportunity(pair string, netProfit string, recognized, executable bool) arbdomain.Opportunity {
	return arbdomain.Opportunity{
		BaseSymbol:   pair[:4],
		QuoteSymbol:  pair[5:],
		AmountIn:     big.NewInt(1e18),
		Forward:      pricingdomain.Quote{Source: "uniswapv3"},
		Return:       pricingdomain.Quote{Source: "camelot"},
		NetProfitUSD: decimal.RequireFromString(netProfit),
		Recognized:   recognized,
		Executable:   executable,
		Timestamp:    time.Now(),
	}
}

func newTestMonitor(t *testing.T, scanner Scanner, store GapStore, reporter Reporter, cfg Config) *Monitor {
	t.Helper()
	m, err := NewMonitor(scanner, store, reporter, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m
}

func TestTickRecordsOnlyProfitableGaps(t *testing.T) {
	scanner := &fakeScanner{opps: []arbdomain.Opportunity{
		opportunity("WETH/USDC", "12.50", true, true),
		opportunity("WBTC/USDC", "0", true, false), // recognized but no net profit
	}}
	store := &memStore{}

	m := newTestMonitor(t, scanner, store, nil, Config{})

	if failed := m.Tick(context.Background()); failed {
		t.Fatal("tick reported failure")
	}

	if got := len(store.records); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
	rec := store.records[0]
	if rec.Pair != "WETH/USDC" {
		t.Errorf("pair = %q", rec.Pair)
	}
	if rec.Status != domain.StatusOpen {
		t.Errorf("status = %q, want open", rec.Status)
	}
	if rec.ForwardVenue != "uniswapv3" || rec.ReturnVenue != "camelot" {
		t.Errorf("route = %s -> %s", rec.ForwardVenue, rec.ReturnVenue)
	}
	if rec.ID == "" {
		t.Error("record has no id")
	}
}

func TestObserveAllRecordsRecognizedGaps(t *testing.T) {
	scanner := &fakeScanner{opps: []arbdomain.Opportunity{
		opportunity("WETH/USDC", "0", true, false),
		opportunity("WBTC/USDC", "0", false, false), // not even recognized
	}}
	store := &memStore{}

	m := newTestMonitor(t, scanner, store, nil, Config{ObserveAll: true})
	m.Tick(context.Background())

	if got := len(store.records); got != 1 {
		t.Fatalf("records = %d, want 1", got)
	}
	if store.records[0].Pair != "WETH/USDC" {
		t.Errorf("pair = %q", store.records[0].Pair)
	}
}

func TestTickDoesNotDeduplicateRepeatObservations(t *testing.T) {
	scanner := &fakeScanner{opps: []arbdomain.Opportunity{
		opportunity("WETH/USDC", "5", true, true),
	}}
	store := &memStore{}

	m := newTestMonitor(t, scanner, store, nil, Config{})
	m.Tick(context.Background())
	m.Tick(context.Background())
	m.Tick(context.Background())

	if got := len(store.records); got != 3 {
		t.Fatalf("records = %d, want one fresh row per tick", got)
	}
	seen := map[string]bool{}
	for _, rec := range store.records {
		if seen[rec.ID] {
			t.Fatalf("duplicate record id %s", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestSweepClosesRecordsBeyondFreshnessWindow(t *testing.T) {
	store := &memStore{}
	stale := domain.PriceGapRecord{
		ID:        "stale",
		Pair:      "WETH/USDC",
		Status:    domain.StatusOpen,
		CreatedAt: time.Now().Add(-10 * time.Minute),
	}
	store.records = append(store.records, stale)

	scanner := &fakeScanner{}
	m := newTestMonitor(t, scanner, store, nil, Config{FreshnessWindow: 5 * time.Minute})
	m.Tick(context.Background())

	if got := len(store.open()); got != 0 {
		t.Fatalf("open records after sweep = %d, want 0", got)
	}
	closed := store.records[0]
	if closed.ClosedAt == nil || closed.DecaySeconds == nil {
		t.Fatal("closed record missing close timestamp or decay")
	}
	if *closed.DecaySeconds < 9*60 {
		t.Errorf("decay = %ds, want at least 540", *closed.DecaySeconds)
	}
}

func TestTickSurvivesStoreErrors(t *testing.T) {
	scanner := &fakeScanner{opps: []arbdomain.Opportunity{
		opportunity("WETH/USDC", "5", true, true),
	}}
	store := &memStore{
		insertErr: errors.New("connection refused"),
		sweepErr:  errors.New("connection refused"),
	}

	m := newTestMonitor(t, scanner, store, nil, Config{})

	if failed := m.Tick(context.Background()); !failed {
		t.Fatal("tick did not report failure")
	}
	// A second tick must still run; the loop never dies on store trouble.
	if failed := m.Tick(context.Background()); !failed {
		t.Fatal("second tick did not report failure")
	}
	if scanner.scans != 2 {
		t.Errorf("scans = %d, want 2", scanner.scans)
	}
}

func TestReporterSeesQualifyingOpportunities(t *testing.T) {
	scanner := &fakeScanner{opps: []arbdomain.Opportunity{
		opportunity("WETH/USDC", "5", true, true),
		opportunity("WBTC/USDC", "0", true, false),
	}}
	store := &memStore{}
	reporter := &countingReporter{}

	m := newTestMonitor(t, scanner, store, reporter, Config{})
	m.Tick(context.Background())

	if reporter.reported != 1 {
		t.Errorf("reported = %d, want 1", reporter.reported)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	scanner := &fakeScanner{}
	store := &memStore{}

	m := newTestMonitor(t, scanner, store, nil, Config{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if scanner.scans == 0 {
		t.Error("no scans ran before cancel")
	}
}
