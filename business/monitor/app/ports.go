package app

import (
	"context"
	"time"

	arbdomain "github.com/dvega/spreadscan/business/arbitrage/domain"
	"github.com/dvega/spreadscan/business/monitor/domain"
)

// GapStore persists price gap records.
type GapStore interface {
	// Insert stores a new open record.
	Insert(ctx context.Context, rec domain.PriceGapRecord) error
	// CloseStale closes every open record created before cutoff and returns
	// how many were closed.
	CloseStale(ctx context.Context, cutoff time.Time) (int64, error)
	// Aggregate summarizes records created at or after since.
	Aggregate(ctx context.Context, since time.Time) (domain.GapStats, error)
	// TopByProfit returns the n records with the highest net profit,
	// descending.
	TopByProfit(ctx context.Context, n int) ([]domain.PriceGapRecord, error)
}

// Reporter renders opportunities as they are observed.
type Reporter interface {
	Report(opp *arbdomain.Opportunity)
}

// NopStore is a GapStore that drops everything. Used when no database is
// configured so the scan loop still runs with console output only.
type NopStore struct{}

func (NopStore) Insert(context.Context, domain.PriceGapRecord) error { return nil }

func (NopStore) CloseStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (NopStore) Aggregate(_ context.Context, since time.Time) (domain.GapStats, error) {
	return domain.GapStats{WindowStart: since}, nil
}

func (NopStore) TopByProfit(context.Context, int) ([]domain.PriceGapRecord, error) {
	return nil, nil
}
