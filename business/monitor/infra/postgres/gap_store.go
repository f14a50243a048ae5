package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dvega/spreadscan/business/monitor/domain"
)

// GapStore implements app.GapStore using PostgreSQL.
type GapStore struct {
	pool *pgxpool.Pool
}

// NewGapStore creates a GapStore over the given pool.
func NewGapStore(pool *pgxpool.Pool) *GapStore {
	return &GapStore{pool: pool}
}

// Insert stores a new price gap record.
func (s *GapStore) Insert(ctx context.Context, rec domain.PriceGapRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_gaps (id, pair, forward_venue, return_venue, amount_in, gross_spread_bps, slip_spread_bps, net_profit_usd, executable, status, created_at, closed_at, decay_seconds)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::numeric, $9, $10, $11, $12, $13)`,
		rec.ID, rec.Pair, rec.ForwardVenue, rec.ReturnVenue,
		rec.AmountIn, rec.GrossSpreadBps, rec.SlipSpreadBps,
		rec.NetProfitUSD.String(), rec.Executable, string(rec.Status),
		rec.CreatedAt, rec.ClosedAt, rec.DecaySeconds,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert price_gap: %w", err)
	}
	return nil
}

// CloseStale closes every open record created before cutoff. The decay is
// computed server-side so restarts cannot skew it.
func (s *GapStore) CloseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE price_gaps
		SET status = 'closed',
		    closed_at = NOW(),
		    decay_seconds = EXTRACT(EPOCH FROM (NOW() - created_at))::BIGINT
		WHERE status = 'open' AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: close stale price_gaps: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Aggregate summarizes records created at or after since.
func (s *GapStore) Aggregate(ctx context.Context, since time.Time) (domain.GapStats, error) {
	stats := domain.GapStats{WindowStart: since}

	var avgSpread, avgDecay float64
	var maxSpread int64
	var maxProfit string
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE executable),
		       COALESCE(AVG(gross_spread_bps), 0),
		       COALESCE(MAX(gross_spread_bps), 0),
		       COALESCE(AVG(decay_seconds), 0),
		       COALESCE(MAX(net_profit_usd), 0)::text
		FROM price_gaps
		WHERE created_at >= $1`,
		since,
	).Scan(&stats.Count, &stats.ExecutableCount, &avgSpread, &maxSpread, &avgDecay, &maxProfit)
	if err != nil {
		return domain.GapStats{}, fmt.Errorf("postgres: aggregate price_gaps: %w", err)
	}

	stats.AvgSpreadBps = avgSpread
	stats.MaxSpreadBps = maxSpread
	stats.AvgDecaySeconds = avgDecay
	stats.MaxNetProfitUSD, err = decimal.NewFromString(maxProfit)
	if err != nil {
		return domain.GapStats{}, fmt.Errorf("postgres: parse max net profit %q: %w", maxProfit, err)
	}

	return stats, nil
}

// TopByProfit returns the n records with the highest net profit, descending.
func (s *GapStore) TopByProfit(ctx context.Context, n int) ([]domain.PriceGapRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pair, forward_venue, return_venue, amount_in::text, gross_spread_bps, slip_spread_bps, net_profit_usd::text, executable, status, created_at, closed_at, decay_seconds
		FROM price_gaps
		ORDER BY net_profit_usd DESC, created_at DESC
		LIMIT $1`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: query top price_gaps: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceGapRecord
	for rows.Next() {
		var rec domain.PriceGapRecord
		var netProfit, status string
		if err := rows.Scan(
			&rec.ID, &rec.Pair, &rec.ForwardVenue, &rec.ReturnVenue,
			&rec.AmountIn, &rec.GrossSpreadBps, &rec.SlipSpreadBps,
			&netProfit, &rec.Executable, &status,
			&rec.CreatedAt, &rec.ClosedAt, &rec.DecaySeconds,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan price_gap: %w", err)
		}
		rec.NetProfitUSD, err = decimal.NewFromString(netProfit)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse net profit %q: %w", netProfit, err)
		}
		rec.Status = domain.GapStatus(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate price_gaps: %w", err)
	}

	return out, nil
}
