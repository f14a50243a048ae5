package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// GasCost represents the estimated gas cost of executing a round trip.
type GasCost struct {
	GasUnits uint64
	GasPrice *big.Int // wei
	TotalWei *big.Int // gasUnits * gasPrice
	Native   decimal.Decimal
	USD      decimal.Decimal // converted at the current native-asset price
}

// NewGasCost builds a GasCost from total gas units, the current gas price
// and the USD price of the native asset.
func NewGasCost(gasUnits uint64, gasPriceWei *big.Int, nativePriceUSD decimal.Decimal) *GasCost {
	totalWei := new(big.Int).Mul(gasPriceWei, new(big.Int).SetUint64(gasUnits))

	native := decimal.NewFromBigInt(totalWei, -18)
	usd := native.Mul(nativePriceUSD)

	return &GasCost{
		GasUnits: gasUnits,
		GasPrice: new(big.Int).Set(gasPriceWei),
		TotalWei: totalWei,
		Native:   native,
		USD:      usd,
	}
}
