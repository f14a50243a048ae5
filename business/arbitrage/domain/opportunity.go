// Package domain contains the core domain types for the arbitrage context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	pricingdomain "github.com/dvega/spreadscan/business/pricing/domain"
)

// Opportunity is one fully evaluated round trip: base -> quote on the
// forward leg, quote -> base on the return leg. Immutable once built.
//
// The two spread figures stay signed; a lossy round trip reports a negative
// number so ranking and diagnosis keep working. Net profit is the opposite:
// it answers "how much would I keep", so it is floored at zero.
type Opportunity struct {
	BaseSymbol   string
	QuoteSymbol  string
	BaseAddress  common.Address
	QuoteAddress common.Address

	AmountIn *big.Int
	Forward  pricingdomain.Quote
	Return   pricingdomain.Quote

	GrossSpreadBps int64
	SlipSpreadBps  int64

	ValueInUSD   decimal.Decimal
	ValueOutUSD  decimal.Decimal
	GasCost      *GasCost
	NetProfitUSD decimal.Decimal

	// Recognized means the zero-slippage round trip is mathematically
	// positive. Executable additionally requires the net profit bar, a
	// positive slippage-adjusted spread and trustworthy USD legs.
	Recognized bool
	Executable bool

	Timestamp time.Time
}

// PairLabel returns the display form of the traded pair.
func (o *Opportunity) PairLabel() string {
	return o.BaseSymbol + "/" + o.QuoteSymbol
}

// RoundTripVenues returns the venue names of the two legs.
func (o *Opportunity) RoundTripVenues() (forward, ret string) {
	return o.Forward.Source, o.Return.Source
}
