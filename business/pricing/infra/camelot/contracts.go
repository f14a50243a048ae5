package camelot

import "math/big"

// FeeDenominator is the basis for pair fee percents.
const FeeDenominator = 100_000

// FactoryABI covers pair discovery.
const FactoryABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "tokenA", "type": "address"},
			{"internalType": "address", "name": "tokenB", "type": "address"}
		],
		"name": "getPair",
		"outputs": [{"internalType": "address", "name": "pair", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// PairABI covers the three probes the adapter runs against a pair: the
// on-chain getAmountOut, the reserve snapshot for the off-chain fallback,
// and the flags needed to interpret both.
const PairABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
			{"internalType": "address", "name": "tokenIn", "type": "address"}
		],
		"name": "getAmountOut",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getReserves",
		"outputs": [
			{"internalType": "uint112", "name": "_reserve0", "type": "uint112"},
			{"internalType": "uint112", "name": "_reserve1", "type": "uint112"},
			{"internalType": "uint16", "name": "_token0FeePercent", "type": "uint16"},
			{"internalType": "uint16", "name": "_token1FeePercent", "type": "uint16"}
		],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "token0",
		"outputs": [{"internalType": "address", "name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "stableSwap",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// constantProductOut computes the swap output from a reserve snapshot using
// x*y=k with the fee taken from the input side. feePercent is expressed over
// FeeDenominator. Returns zero when the pool is empty.
func constantProductOut(amountIn, reserveIn, reserveOut *big.Int, feePercent uint16) *big.Int {
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountIn.Sign() <= 0 {
		return new(big.Int)
	}

	feeBasis := big.NewInt(FeeDenominator)
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(FeeDenominator-int(feePercent))))
	inWithFee.Quo(inWithFee, feeBasis)

	numerator := new(big.Int).Mul(reserveOut, inWithFee)
	denominator := new(big.Int).Add(reserveIn, inWithFee)

	return numerator.Quo(numerator, denominator)
}
