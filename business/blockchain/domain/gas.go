// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"
)

// GasPrice represents a gas price observation.
type GasPrice struct {
	Wei       *big.Int
	Gwei      float64
	Timestamp time.Time
}

// NewGasPrice creates a GasPrice from wei.
func NewGasPrice(wei *big.Int) *GasPrice {
	gwei := new(big.Float).SetInt(wei)
	gwei.Quo(gwei, big.NewFloat(1e9))
	gweiFloat, _ := gwei.Float64()

	return &GasPrice{
		Wei:       new(big.Int).Set(wei),
		Gwei:      gweiFloat,
		Timestamp: time.Now(),
	}
}

// CostWei returns the total cost in wei of spending gasUnits at this price.
func (p *GasPrice) CostWei(gasUnits uint64) *big.Int {
	return new(big.Int).Mul(p.Wei, new(big.Int).SetUint64(gasUnits))
}
