// Package app contains port definitions for the blockchain context.
package app

import (
	"context"

	"github.com/dvega/spreadscan/business/blockchain/domain"
)

// FeeSource provides the current gas price of the target rollup.
type FeeSource interface {
	// GasPrice retrieves the current gas price, possibly cached.
	GasPrice(ctx context.Context) (*domain.GasPrice, error)
}
