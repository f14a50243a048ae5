// Package domain contains the persisted gap-tracking types for the monitor
// context.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	arbdomain "github.com/dvega/spreadscan/business/arbitrage/domain"
)

// GapStatus is the lifecycle state of a persisted price gap.
type GapStatus string

const (
	// StatusOpen marks a gap observed on the most recent scans.
	StatusOpen GapStatus = "open"
	// StatusClosed marks a gap no longer observed. Terminal.
	StatusClosed GapStatus = "closed"
)

// PriceGapRecord is one observation of a round-trip gap, persisted per tick.
// The monitor inserts a fresh row for every qualifying observation rather
// than matching against existing open rows; the sweep closes stale ones by
// timestamp.
type PriceGapRecord struct {
	ID           string
	Pair         string
	ForwardVenue string
	ReturnVenue  string

	AmountIn       string // raw integer amount, stored as text
	GrossSpreadBps int64
	SlipSpreadBps  int64
	NetProfitUSD   decimal.Decimal
	Executable     bool

	Status    GapStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
	// DecaySeconds is the wall-clock seconds the gap stayed open, computed
	// when the sweep closes the record.
	DecaySeconds *int64
}

// NewGapRecord creates an open record from an evaluated opportunity.
func NewGapRecord(opp *arbdomain.Opportunity) PriceGapRecord {
	forward, ret := opp.RoundTripVenues()
	return PriceGapRecord{
		ID:             uuid.NewString(),
		Pair:           opp.PairLabel(),
		ForwardVenue:   forward,
		ReturnVenue:    ret,
		AmountIn:       opp.AmountIn.String(),
		GrossSpreadBps: opp.GrossSpreadBps,
		SlipSpreadBps:  opp.SlipSpreadBps,
		NetProfitUSD:   opp.NetProfitUSD,
		Executable:     opp.Executable,
		Status:         StatusOpen,
		CreatedAt:      opp.Timestamp,
	}
}

// Close marks the record closed at the given time and stamps the decay.
func (r *PriceGapRecord) Close(at time.Time) {
	r.Status = StatusClosed
	r.ClosedAt = &at
	decay := int64(at.Sub(r.CreatedAt).Seconds())
	if decay < 0 {
		decay = 0
	}
	r.DecaySeconds = &decay
}

// GapStats summarizes the records of one time window. AvgDecaySeconds covers
// only records the sweep has already closed.
type GapStats struct {
	WindowStart     time.Time
	Count           int64
	ExecutableCount int64
	AvgSpreadBps    float64
	MaxSpreadBps    int64
	AvgDecaySeconds float64
	MaxNetProfitUSD decimal.Decimal
}
