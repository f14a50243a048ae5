// Package numeric provides integer fixed-point arithmetic for spread, slippage
// and profit calculations. All operations work on big.Int raw token amounts
// (smallest unit); floating point never enters these paths.
package numeric

import "math/big"

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10000

var (
	bpsDenom = big.NewInt(BpsDenominator)
	zero     = big.NewInt(0)
)

// MulDiv computes (a*b)/scale with truncation toward zero.
// The intermediate product is a full-width big.Int, so products of two
// 18-decimal amounts cannot overflow. A zero scale yields zero.
func MulDiv(a, b, scale *big.Int) *big.Int {
	if a == nil || b == nil || scale == nil || scale.Sign() == 0 {
		return new(big.Int)
	}
	prod := new(big.Int).Mul(a, b)
	return prod.Quo(prod, scale)
}

// BasisPoints returns (value*10000)/total, truncated.
// A zero total is a defined zero result, not an error: amounts of zero are a
// legitimate input on quote-failure paths.
func BasisPoints(value, total *big.Int) *big.Int {
	if value == nil || total == nil || total.Sign() == 0 {
		return new(big.Int)
	}
	return MulDiv(value, bpsDenom, total)
}

// ReduceByBasisPoints returns amount*(10000-bps)/10000.
// bps of 10000 (100%) yields zero; bps of 0 returns the amount unchanged.
func ReduceByBasisPoints(amount *big.Int, bps int64) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	if bps <= 0 {
		return new(big.Int).Set(amount)
	}
	if bps >= BpsDenominator {
		return new(big.Int)
	}
	keep := big.NewInt(BpsDenominator - bps)
	return MulDiv(amount, keep, bpsDenom)
}

// RoundDownToUnit floors value to a multiple of unit: (value/unit)*unit.
// A zero or nil unit returns the value unchanged. Idempotent.
func RoundDownToUnit(value, unit *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	if unit == nil || unit.Sign() == 0 {
		return new(big.Int).Set(value)
	}
	q := new(big.Int).Quo(value, unit)
	return q.Mul(q, unit)
}

// SpreadBps returns the signed round-trip spread in basis points:
// (amountOut-amountIn)*10000/amountIn. Losses come back negative; callers must
// never clamp the result, ranking and diagnostics depend on the sign.
// A zero amountIn is a defined zero result.
func SpreadBps(amountIn, amountOut *big.Int) *big.Int {
	if amountIn == nil || amountOut == nil || amountIn.Sign() == 0 {
		return new(big.Int)
	}
	diff := new(big.Int).Sub(amountOut, amountIn)
	return MulDiv(diff, bpsDenom, amountIn)
}

// Pow10 returns 10^n as a big.Int. n must be non-negative.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
